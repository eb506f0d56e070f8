// Package driver implements the top-level Runner: it wires config, Redis,
// and shepherd together into either a SingleBrowserDriver or a
// MultiBrowserDriver, per spec §4.8.
package driver

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/autodriver/config"
	"github.com/use-agent/autodriver/shepherd"
)

// Driver is the common surface cmd/driver's Runner drives: block in Run
// until ShutdownCondition fires, then report the process exit code. It also
// satisfies adminserver.StatsProvider so /stats can report live tab counts.
type Driver interface {
	Run(ctx context.Context) error
	Shutdown() *ShutdownCondition
	ExitCode() int
	BrowserCount() int
	TabCounts() map[string]int
}

// New picks SingleBrowserDriver or MultiBrowserDriver per
// config.AutomationConfig.IsSingleBrowser, per spec §4.8.
func New(cfg *config.AutomationConfig, rdb *redis.Client, sh *shepherd.Client) Driver {
	if cfg.IsSingleBrowser() {
		return NewSingle(cfg, rdb, sh)
	}
	return NewMulti(cfg, rdb, sh)
}
