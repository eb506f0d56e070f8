package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TabType selects which Tab implementation the Driver attaches to each
// discovered CDP target.
type TabType string

const (
	TabTypeBehavior TabType = "BehaviorTab"
	TabTypeCrawler  TabType = "CrawlerTab"
)

// AutomationConfig is immutable for the life of a run. It is constructed
// once at process start by Load and passed down explicitly; nothing here
// is mutated afterward.
type AutomationConfig struct {
	AutoID  string
	ReqID   string
	BrowserID string
	NumTabs int
	TabType TabType

	MaxBehaviorTime   time.Duration // -1 disables the bound
	NavigationTimeout time.Duration

	NetCacheDisabled bool
	WaitForQ         bool

	ShepherdHost    string
	BehaviorAPIURL  string
	BehaviorFetchEndpoint string
	BehaviorInfoEndpoint  string

	ScreenshotAPIURL    string
	ScreenshotTargetURI string
	ScreenshotFormat    string

	BrowserHostIP string // presence selects SingleBrowserDriver
	CDPPort       int

	ChromeOpts map[string]any

	StealthEnabled bool
	AdminAddr      string
	MetricsEnabled bool
	BehaviorHTTPTimeout time.Duration

	RedisURL string

	// Options holds every variable of the process environment by name, so
	// callers that need an extra knob not promoted to a struct field can
	// still look it up.
	Options map[string]string
}

// Validate enforces the data-model invariants from the automation config
// contract: num_tabs >= 1, -1 is the only negative MaxBehaviorTime, and the
// shepherd and behavior API base URLs, when set, parse as absolute URLs.
func (c *AutomationConfig) Validate() error {
	if c.NumTabs < 1 {
		return fmt.Errorf("config: num_tabs must be >= 1, got %d", c.NumTabs)
	}
	// -1s is the sentinel for "disabled"; any other negative value is invalid.
	if c.MaxBehaviorTime < 0 && c.MaxBehaviorTime != -time.Second {
		return fmt.Errorf("config: max_behavior_time must be >= 0 or -1, got %s", c.MaxBehaviorTime)
	}
	for name, raw := range map[string]string{
		"shepherd_host":    c.ShepherdHost,
		"behavior_api_url": c.BehaviorAPIURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.ParseRequestURI(raw)
		if err == nil && (!u.IsAbs() || u.Host == "") {
			err = fmt.Errorf("missing scheme or host in %q", raw)
		}
		if err != nil {
			return fmt.Errorf("config: %s is not an absolute URL: %w", name, err)
		}
	}
	return nil
}

// BehaviorDisabled reports whether the behavior wall-clock bound is off.
func (c *AutomationConfig) BehaviorDisabled() bool {
	return c.MaxBehaviorTime == -time.Second
}

// Load reads the recognized environment options and builds an
// AutomationConfig, mirroring spec §6's External Interfaces table.
func Load() (*AutomationConfig, error) {
	autoID := envOr("AUTO_ID", "")
	if autoID == "" {
		autoID = uuid.NewString()
	}
	reqID := envOr("REQ_ID", "")
	if reqID == "" {
		reqID = uuid.NewString()
	}

	behaviorAPI := envOr("BEHAVIOR_API_URL", "http://localhost:3030")

	chromeOpts := map[string]any{}
	if raw := os.Getenv("CHROME_OPTS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &chromeOpts); err != nil {
			return nil, fmt.Errorf("config: CHROME_OPTS is not valid JSON: %w", err)
		}
	}

	behaviorRunSecs := envIntOr("BEHAVIOR_RUN_TIME", 60)
	maxBehaviorTime := time.Duration(behaviorRunSecs) * time.Second
	if behaviorRunSecs == -1 {
		maxBehaviorTime = -time.Second
	}

	cfg := &AutomationConfig{
		AutoID:    autoID,
		ReqID:     reqID,
		BrowserID: envOr("BROWSER_ID", "chrome:67"),
		NumTabs:   envIntOr("NUM_TABS", 1),
		TabType:   TabType(envOr("TAB_TYPE", string(TabTypeBehavior))),

		MaxBehaviorTime:   maxBehaviorTime,
		NavigationTimeout: time.Duration(envIntOr("NAV_TO", 30)) * time.Second,

		NetCacheDisabled: envBoolOr("CRAWL_NO_NETCACHE", true),
		WaitForQ:         envBoolOr("WAIT_FOR_Q", true),

		ShepherdHost:   envOr("SHEPHERD_HOST", "http://shepherd:9020"),
		BehaviorAPIURL: behaviorAPI,
		// FETCH_BEHAVIOR_INFO_ENDPOINT has its own env var, per spec §9's
		// note that an earlier source shadowed it with REQ_BROWSER_PATH;
		// that bug is not reproduced here.
		BehaviorFetchEndpoint: envOr("FETCH_BEHAVIOR_ENDPOINT", behaviorAPI+"/behavior?url="),
		BehaviorInfoEndpoint:  envOr("FETCH_BEHAVIOR_INFO_ENDPOINT", behaviorAPI+"/info?url="),

		ScreenshotAPIURL:    os.Getenv("SCREENSHOT_API_URL"),
		ScreenshotTargetURI: os.Getenv("SCREENSHOT_TARGET_URI"),
		ScreenshotFormat:    os.Getenv("SCREENSHOT_FORMAT"),

		BrowserHostIP: os.Getenv("BROWSER_HOST"),
		CDPPort:       envIntOr("CDP_PORT", 9222),

		ChromeOpts: chromeOpts,

		StealthEnabled:      envBoolOr("STEALTH_ENABLED", false),
		AdminAddr:           envOr("ADMIN_ADDR", ":9021"),
		MetricsEnabled:      envBoolOr("METRICS_ENABLED", true),
		BehaviorHTTPTimeout: envDurationOr("BEHAVIOR_HTTP_TIMEOUT", 10*time.Second),

		RedisURL: envOr("REDIS_URL", "redis://localhost"),

		Options: map[string]string{},
	}

	for _, k := range os.Environ() {
		if idx := strings.IndexByte(k, '='); idx > 0 {
			cfg.Options[k[:idx]] = k[idx+1:]
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsSingleBrowser reports whether BROWSER_HOST selects SingleBrowserDriver.
func (c *AutomationConfig) IsSingleBrowser() bool {
	return c.BrowserHostIP != ""
}

// --- env helpers, in the teacher's style ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
