package driver

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/redis/go-redis/v9"

	"github.com/use-agent/autodriver/behavior"
	"github.com/use-agent/autodriver/browserproc"
	"github.com/use-agent/autodriver/config"
	"github.com/use-agent/autodriver/frontier"
	"github.com/use-agent/autodriver/httpclient"
	"github.com/use-agent/autodriver/models"
	"github.com/use-agent/autodriver/shepherd"
	"github.com/use-agent/autodriver/tab"
)

// buildBrowser connects go-rod at the browser level against an already
// resolved ip, attaches one Tab per discovered target (BehaviorTab or
// CrawlerTab per cfg.TabType), and wraps the result in a browserproc.Browser,
// per spec §4.7/§4.8. Resolving ip (staging a fresh browser vs. reconnecting
// to an existing one) is the caller's responsibility: SingleBrowserDriver
// already has it from config, MultiBrowserDriver resolves it per browser via
// resolveBrowserIP.
func buildBrowser(ctx context.Context, cfg *config.AutomationConfig, ip string, rdb *redis.Client, sh *shepherd.Client, autoInfo models.AutoInfo) (*browserproc.Browser, error) {
	tabDatas, err := sh.WaitForTabs(ctx, ip, cfg.CDPPort, cfg.NumTabs)
	if err != nil {
		return nil, fmt.Errorf("driver: waiting for tabs: %w", err)
	}
	if len(tabDatas) == 0 {
		return nil, fmt.Errorf("driver: shepherd reported no tabs for %s", ip)
	}

	wsURL, err := sh.BrowserDebuggerURL(ctx, ip, cfg.CDPPort)
	if err != nil {
		return nil, fmt.Errorf("driver: fetching browser debugger url: %w", err)
	}

	rodBrowser := rod.New().ControlURL(wsURL).Context(ctx)
	if err := rodBrowser.Connect(); err != nil {
		return nil, fmt.Errorf("driver: connecting to browser: %w", err)
	}

	behaviorManager := newRemoteBehaviorManager(cfg)

	tabs := make(map[string]tab.Tab, len(tabDatas))
	for _, data := range tabDatas {
		page, err := rodBrowser.PageFromTarget(data.TargetID)
		if err != nil {
			return nil, fmt.Errorf("driver: attaching to target %s: %w", data.TargetID, err)
		}

		id := string(data.TargetID)
		base := tab.NewBase(id, data, cfg.StealthEnabled, cfg.NetCacheDisabled, cfg.NavigationTimeout, string(cfg.TabType))

		var t tab.Tab
		switch cfg.TabType {
		case config.TabTypeCrawler:
			fr := frontier.New(rdb, cfg.AutoID)
			t = tab.NewCrawlerTab(base, fr, behaviorManager, cfg.WaitForQ, cfg.MaxBehaviorTime)
		default:
			t = tab.NewBehaviorTab(base, behaviorManager, cfg.MaxBehaviorTime)
		}

		if err := base.AttachPage(ctx, page); err != nil {
			return nil, fmt.Errorf("driver: attaching page for tab %s: %w", id, err)
		}
		tabs[id] = t
	}

	browser := browserproc.New(rodBrowser, autoInfo)
	if err := browser.Init(ctx, tabs); err != nil {
		return nil, fmt.Errorf("driver: initializing browser: %w", err)
	}
	return browser, nil
}

func newRemoteBehaviorManager(cfg *config.AutomationConfig) behavior.Manager {
	client := httpclient.New(cfg.BehaviorHTTPTimeout)
	return behavior.NewRemoteManager(client, cfg.BehaviorFetchEndpoint, cfg.BehaviorInfoEndpoint)
}

// resolveBrowserIP implements MultiBrowserDriver's add_browser staging
// protocol of spec §4.8: try IP reconnect first via a reqid info lookup,
// else init_new_browser (request_browser + init_wait) with browser_id and
// cdata. Returns the resolved ip and the reqid the browser ended up staged
// under (unchanged from reqID when reconnecting, or shepherd's assigned
// reqid when none was supplied and a new browser had to be requested).
func resolveBrowserIP(ctx context.Context, cfg *config.AutomationConfig, sh *shepherd.Client, reqID string) (ip string, resolvedReqID string, err error) {
	if reqID != "" {
		if got, infoErr := sh.Info(ctx, reqID); infoErr == nil && got != "" {
			return got, reqID, nil
		}
	}

	cdata := map[string]any{"autoid": cfg.AutoID}
	if reqID != "" {
		cdata["reqid"] = reqID
	}
	stagedReqID, err := sh.RequestBrowser(ctx, cfg.BrowserID, cdata)
	if err != nil {
		return "", "", fmt.Errorf("driver: requesting new browser: %w", err)
	}

	info := sh.InitWait(ctx, stagedReqID)
	if info == nil {
		return "", "", fmt.Errorf("driver: init_wait for reqid %s never returned cmd_port", stagedReqID)
	}
	ip, _ = info["ip"].(string)
	if ip == "" {
		return "", "", fmt.Errorf("driver: init_browser response for reqid %s carried no ip", stagedReqID)
	}
	return ip, stagedReqID, nil
}
