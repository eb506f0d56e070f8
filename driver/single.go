package driver

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/autodriver/browserproc"
	"github.com/use-agent/autodriver/config"
	"github.com/use-agent/autodriver/models"
	"github.com/use-agent/autodriver/shepherd"
	"github.com/use-agent/autodriver/tab"
)

// controlMessage is the JSON shape published on the control-plane channels.
type controlMessage struct {
	Cmd   string `json:"cmd"`
	ReqID string `json:"reqid,omitempty"`
}

// Single owns a Redis pool, one HTTP session, a ShutdownCondition, and a
// single Browser, per spec §4.8's SingleBrowserDriver.
type Single struct {
	cfg      *config.AutomationConfig
	rdb      *redis.Client
	shepherd *shepherd.Client
	shutdown *ShutdownCondition

	mu      sync.Mutex
	browser *browserproc.Browser
	exits   []models.BrowserExitInfo
}

// NewSingle constructs a SingleBrowserDriver.
func NewSingle(cfg *config.AutomationConfig, rdb *redis.Client, sh *shepherd.Client) *Single {
	return &Single{cfg: cfg, rdb: rdb, shepherd: sh, shutdown: NewShutdownCondition()}
}

// Shutdown exposes the driver's ShutdownCondition to the Runner.
func (d *Single) Shutdown() *ShutdownCondition { return d.shutdown }

// Run connects the configured browser, subscribes to its control channel,
// and blocks until shutdown is initiated.
func (d *Single) Run(ctx context.Context) error {
	autoInfo := models.AutoInfo{AutoID: d.cfg.AutoID, ReqID: d.cfg.ReqID}

	browser, err := buildBrowser(ctx, d.cfg, d.cfg.BrowserHostIP, d.rdb, d.shepherd, autoInfo)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.browser = browser
	d.mu.Unlock()
	browser.OnExiting(d.onExiting)

	channel := "wr.auto-event:" + d.cfg.ReqID
	pubsub := d.rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	go d.pubsubLoop(ctx, pubsub)

	<-d.shutdown.Wait()
	d.mu.Lock()
	b := d.browser
	d.mu.Unlock()
	if b != nil {
		b.Close(ctx, !d.shutdown.BySignal())
	}
	return nil
}

func (d *Single) pubsubLoop(ctx context.Context, pubsub *redis.PubSub) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown.Wait():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			d.handleControl(ctx, msg.Payload)
		}
	}
}

// handleControl applies a pub/sub command to the single owned Browser, per
// spec §4.8's control table: "stop" pauses every BehaviorTab in place,
// "start" resumes them (restarting on URL change per spec §4.6), and
// "shutdown" initiates a graceful drain.
func (d *Single) handleControl(ctx context.Context, payload string) {
	var cmd controlMessage
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		slog.Warn("single_driver: malformed control message", "payload", payload, "error", err)
		return
	}

	switch cmd.Cmd {
	case "stop":
		d.forEachBehaviorTab(func(bt *tab.Behavior) { bt.PauseBehaviors(ctx) })
	case "start":
		d.forEachBehaviorTab(func(bt *tab.Behavior) { bt.ResumeBehaviors(ctx) })
	case "shutdown":
		d.shutdown.Initiate(false)
	default:
		slog.Warn("single_driver: unrecognized control command", "cmd", cmd.Cmd)
	}
}

func (d *Single) forEachBehaviorTab(fn func(*tab.Behavior)) {
	d.mu.Lock()
	browser := d.browser
	d.mu.Unlock()
	if browser == nil {
		return
	}
	for _, t := range browser.Tabs() {
		if bt, ok := t.(*tab.Behavior); ok {
			fn(bt)
		}
	}
}

func (d *Single) onExiting(info models.BrowserExitInfo) {
	d.mu.Lock()
	d.exits = append(d.exits, info)
	d.browser = nil
	d.mu.Unlock()
	d.shutdown.Initiate(d.shutdown.BySignal())
}

// ExitCode returns the determined process exit code for this run.
func (d *Single) ExitCode() int {
	return DetermineExitCode(d.shutdown.BySignal(), d.exits)
}

// BrowserCount implements adminserver.StatsProvider.
func (d *Single) BrowserCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return 0
	}
	return 1
}

// TabCounts implements adminserver.StatsProvider.
func (d *Single) TabCounts() map[string]int {
	d.mu.Lock()
	browser := d.browser
	reqID := d.cfg.ReqID
	d.mu.Unlock()
	if browser == nil {
		return map[string]int{}
	}
	return map[string]int{reqID: browser.TabCount()}
}
