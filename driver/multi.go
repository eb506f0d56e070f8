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
)

// multiControlMessage is the JSON shape published on the shared "auto-event"
// channel, carrying enough of a browser's config to stage or address it.
type multiControlMessage struct {
	Cmd       string `json:"cmd"`
	AutoID    string `json:"auto_id,omitempty"`
	ReqID     string `json:"reqid,omitempty"`
	BrowserID string `json:"browser_id,omitempty"`
}

// Multi is the MultiBrowserDriver of spec §4.8: it owns one process-wide
// Redis pool and HTTP session, listens on the shared "auto-event" channel,
// and maintains a live map of reqid -> Browser, adding and removing browsers
// as "start"/"stop" commands arrive.
type Multi struct {
	base     *config.AutomationConfig
	rdb      *redis.Client
	shepherd *shepherd.Client
	shutdown *ShutdownCondition

	mu       sync.Mutex
	browsers map[string]*browserproc.Browser
	exits    []models.BrowserExitInfo
}

// NewMulti constructs a MultiBrowserDriver.
func NewMulti(base *config.AutomationConfig, rdb *redis.Client, sh *shepherd.Client) *Multi {
	return &Multi{
		base:     base,
		rdb:      rdb,
		shepherd: sh,
		shutdown: NewShutdownCondition(),
		browsers: make(map[string]*browserproc.Browser),
	}
}

// Shutdown exposes the driver's ShutdownCondition to the Runner.
func (d *Multi) Shutdown() *ShutdownCondition { return d.shutdown }

// Run subscribes to the shared control channel and blocks until shutdown.
func (d *Multi) Run(ctx context.Context) error {
	pubsub := d.rdb.Subscribe(ctx, "auto-event")
	defer pubsub.Close()

	go d.pubsubLoop(ctx, pubsub)

	<-d.shutdown.Wait()
	d.closeAll(ctx, !d.shutdown.BySignal())
	return nil
}

func (d *Multi) pubsubLoop(ctx context.Context, pubsub *redis.PubSub) {
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

func (d *Multi) handleControl(ctx context.Context, payload string) {
	var cmd multiControlMessage
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		slog.Warn("multi_driver: malformed control message", "payload", payload, "error", err)
		return
	}

	switch cmd.Cmd {
	case "start":
		d.addBrowser(ctx, cmd)
	case "stop":
		d.removeBrowser(ctx, cmd.ReqID, true)
	case "shutdown":
		d.shutdown.Initiate(false)
	default:
		slog.Warn("multi_driver: unrecognized control command", "cmd", cmd.Cmd)
	}
}

// addBrowser derives a per-request config from the base env-loaded config
// (each field the message supplies overrides the corresponding base value),
// resolves an ip via resolveBrowserIP (reconnect first, else stage a new
// browser), connects, and registers the result under the resolved reqid.
func (d *Multi) addBrowser(ctx context.Context, cmd multiControlMessage) {
	d.mu.Lock()
	if _, exists := d.browsers[cmd.ReqID]; exists {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	cfg := *d.base
	if cmd.AutoID != "" {
		cfg.AutoID = cmd.AutoID
	}
	if cmd.ReqID != "" {
		cfg.ReqID = cmd.ReqID
	}
	if cmd.BrowserID != "" {
		cfg.BrowserID = cmd.BrowserID
	}

	ip, reqID, err := resolveBrowserIP(ctx, &cfg, d.shepherd, cfg.ReqID)
	if err != nil {
		slog.Error("multi_driver: resolving browser ip failed", "reqid", cfg.ReqID, "error", err)
		return
	}
	cfg.ReqID = reqID

	d.mu.Lock()
	if _, exists := d.browsers[reqID]; exists {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	autoInfo := models.AutoInfo{AutoID: cfg.AutoID, ReqID: cfg.ReqID}
	browser, err := buildBrowser(ctx, &cfg, ip, d.rdb, d.shepherd, autoInfo)
	if err != nil {
		slog.Error("multi_driver: add_browser failed", "reqid", cfg.ReqID, "error", err)
		return
	}
	browser.OnExiting(func(info models.BrowserExitInfo) {
		d.onBrowserExiting(reqID, info)
	})

	d.mu.Lock()
	d.browsers[reqID] = browser
	d.mu.Unlock()
}

func (d *Multi) removeBrowser(ctx context.Context, reqID string, gracefully bool) {
	d.mu.Lock()
	browser, ok := d.browsers[reqID]
	d.mu.Unlock()
	if !ok {
		return
	}
	browser.Close(ctx, gracefully)
}

func (d *Multi) onBrowserExiting(reqID string, info models.BrowserExitInfo) {
	d.mu.Lock()
	delete(d.browsers, reqID)
	d.exits = append(d.exits, info)
	remaining := len(d.browsers)
	d.mu.Unlock()

	if remaining == 0 {
		d.shutdown.Initiate(d.shutdown.BySignal())
	}
}

func (d *Multi) closeAll(ctx context.Context, gracefully bool) {
	d.mu.Lock()
	browsers := make([]*browserproc.Browser, 0, len(d.browsers))
	for _, b := range d.browsers {
		browsers = append(browsers, b)
	}
	d.mu.Unlock()

	for _, b := range browsers {
		b.Close(ctx, gracefully)
	}
}

// ExitCode returns the determined process exit code for this run.
func (d *Multi) ExitCode() int {
	return DetermineExitCode(d.shutdown.BySignal(), d.exits)
}

// BrowserCount implements adminserver.StatsProvider.
func (d *Multi) BrowserCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.browsers)
}

// TabCounts implements adminserver.StatsProvider.
func (d *Multi) TabCounts() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.browsers))
	for reqID, b := range d.browsers {
		out[reqID] = b.TabCount()
	}
	return out
}
