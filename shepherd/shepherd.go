// Package shepherd implements the client for the browser-provisioning HTTP
// API, per spec §4.8 and §6.
package shepherd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/autodriver/tab"
)

func targetIDFromString(id string) proto.TargetID {
	return proto.TargetID(id)
}

// Client talks to one shepherd instance over its own *http.Client. The
// behavior manager does not share it: it uses a separate httpclient.Client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a shepherd Client bound to baseURL.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

// StagingError is returned when the shepherd POST did not return a reqid.
// MultiBrowserDriver logs it and does not add that browser.
type StagingError struct {
	BrowserID string
	Err       error
}

func (e *StagingError) Error() string {
	return fmt.Sprintf("shepherd: staging browser %q failed: %v", e.BrowserID, e.Err)
}
func (e *StagingError) Unwrap() error { return e.Err }

// RequestBrowser stages a browser: POST /request_browser/{browser_id}.
func (c *Client) RequestBrowser(ctx context.Context, browserID string, body any) (reqID string, err error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return "", &StagingError{BrowserID: browserID, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/request_browser/"+browserID, &buf)
	if err != nil {
		return "", &StagingError{BrowserID: browserID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &StagingError{BrowserID: browserID, Err: err}
	}
	defer resp.Body.Close()

	var out struct {
		ReqID string `json:"reqid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.ReqID == "" {
		return "", &StagingError{BrowserID: browserID, Err: fmt.Errorf("no reqid in response")}
	}
	return out.ReqID, nil
}

// InitWait polls GET /init_browser?reqid={reqid} with Host: localhost every
// 0.5s until the response contains cmd_port. On JSON-parse error it gives
// up and returns nil, per spec §4.8's BrowserInitError policy.
func (c *Client) InitWait(ctx context.Context, reqID string) map[string]any {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info := c.tryInitBrowser(ctx, reqID)
			if info == nil {
				return nil
			}
			if _, ok := info["cmd_port"]; ok {
				return info
			}
		}
	}
}

func (c *Client) tryInitBrowser(ctx context.Context, reqID string) map[string]any {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/init_browser?reqid="+reqID, nil)
	if err != nil {
		return nil
	}
	req.Host = "localhost"

	resp, err := c.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	if len(body) == 0 {
		return map[string]any{}
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil
	}
	return out
}

// Info fetches GET /info/{reqid} -> {ip}, used for reconnect to an existing browser.
func (c *Client) Info(ctx context.Context, reqID string) (ip string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/info/"+reqID, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.IP, nil
}

// cdpTarget mirrors one entry of the /json listing.
type cdpTarget struct {
	Type                 string `json:"type"`
	ID                   string `json:"id"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// WaitForTabs polls GET http://{ip}:{port}/json every 0.5s until at least
// one page target is present, then (for numTabs > 1) opens the remaining
// tabs via /json/new.
func (c *Client) WaitForTabs(ctx context.Context, ip string, port, numTabs int) ([]tab.Data, error) {
	base := fmt.Sprintf("http://%s:%d", ip, port)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var pages []cdpTarget
	for {
		pages = c.listPages(ctx, base)
		if len(pages) > 0 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	for i := 1; i < numTabs; i++ {
		if t, err := c.newTab(ctx, base); err == nil {
			pages = append(pages, t)
		}
	}

	out := make([]tab.Data, 0, len(pages))
	for _, p := range pages {
		if p.Type != "page" || p.WebSocketDebuggerURL == "" {
			continue
		}
		out = append(out, tab.Data{
			TargetID:             targetIDFromString(p.ID),
			WebSocketDebuggerURL: p.WebSocketDebuggerURL,
			Type:                 p.Type,
		})
	}
	return out, nil
}

func (c *Client) listPages(ctx context.Context, base string) []cdpTarget {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json", nil)
	if err != nil {
		return nil
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	var targets []cdpTarget
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil
	}
	filtered := targets[:0]
	for _, t := range targets {
		if t.Type == "page" && t.WebSocketDebuggerURL != "" {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

func (c *Client) newTab(ctx context.Context, base string) (cdpTarget, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/new", nil)
	if err != nil {
		return cdpTarget{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return cdpTarget{}, err
	}
	defer resp.Body.Close()

	var t cdpTarget
	if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
		return cdpTarget{}, err
	}
	return t, nil
}

// BrowserDebuggerURL fetches the browser-level CDP endpoint from
// /json/version. The shepherd discovery surface named in spec §4.8/§6 only
// lists /json and /json/new, but go-rod needs the browser-level websocket
// (not a page-level one) to multiplex per-tab sessions; /json/version is
// standard CDP discovery and a reasonable addition to that surface.
func (c *Client) BrowserDebuggerURL(ctx context.Context, ip string, port int) (string, error) {
	base := fmt.Sprintf("http://%s:%d", ip, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/json/version", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.WebSocketDebuggerURL, nil
}
