// Package behavior implements the BehaviorManager (fetching/matching a JS
// behavior for a page URL) and the BehaviorRunner (driving one behavior to
// completion inside a tab), per spec §4.3–§4.4.
package behavior

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/use-agent/autodriver/httpclient"
)

// Behavior is one resolved, ready-to-inject behavior script.
type Behavior struct {
	JS string
}

// Manager resolves a Behavior for a page URL. Two variants share this
// interface: RemoteManager (HTTP-backed) and LocalManager (match-rule
// backed), per spec §4.3.
type Manager interface {
	BehaviorForURL(ctx context.Context, url string, tab PageHost) (*Behavior, error)
	BehaviorInfoForURL(ctx context.Context, url string) (map[string]any, error)
}

// PageHost is the subset of Tab capabilities a Behavior needs; kept as an
// interface here (rather than importing the tab package directly) to avoid
// a behavior<->tab import cycle, the same way the teacher's engine package
// avoids importing scraper directly.
type PageHost interface {
	// InjectScript evaluates js for side effect only (e.g. defining the
	// behavior's page-side globals); any result value is discarded.
	InjectScript(ctx context.Context, js string) error
	// EvalExpression evaluates js as an expression and returns its
	// JSON-encoded result value.
	EvalExpression(ctx context.Context, js string) ([]byte, error)
	// WaitForNetIdle blocks until network idle or its own internal timeout.
	WaitForNetIdle(ctx context.Context)
	// CollectOutlinks harvests outlinks and feeds them back into the frontier.
	CollectOutlinks(ctx context.Context) error
}

// RemoteManager fetches behavior JS/info from a remote behavior service
// over the Chrome-fingerprinted httpclient, per spec §4.3's Remote variant.
type RemoteManager struct {
	client         *httpclient.Client
	fetchEndpoint  string // e.g. http://host/behavior?url=
	infoEndpoint   string // e.g. http://host/info?url=
}

// NewRemoteManager builds a RemoteManager bound to the given endpoints.
func NewRemoteManager(client *httpclient.Client, fetchEndpoint, infoEndpoint string) *RemoteManager {
	return &RemoteManager{client: client, fetchEndpoint: fetchEndpoint, infoEndpoint: infoEndpoint}
}

// BehaviorForURL issues an HTTP GET to fetchEndpoint+url to retrieve the JS
// source as text.
func (m *RemoteManager) BehaviorForURL(ctx context.Context, url string, _ PageHost) (*Behavior, error) {
	body, err := m.client.Get(ctx, m.fetchEndpoint+url)
	if err != nil {
		return nil, fmt.Errorf("behavior: remote fetch failed: %w", err)
	}
	return &Behavior{JS: string(body)}, nil
}

// BehaviorInfoForURL issues an HTTP GET to infoEndpoint+url returning JSON,
// decoded into a generic map for callers that only need a few fields.
func (m *RemoteManager) BehaviorInfoForURL(ctx context.Context, url string) (map[string]any, error) {
	body, err := m.client.Get(ctx, m.infoEndpoint+url)
	if err != nil {
		return nil, fmt.Errorf("behavior: remote info fetch failed: %w", err)
	}
	return decodeJSONObject(body)
}

// MatchRule is one {match_rule, behavior_config} pair for LocalManager.
type MatchRule struct {
	Pattern string // substring match against the URL, first hit wins
	Config  BehaviorConfig
}

// BehaviorConfig names the on-disk resource a local behavior's JS is read
// from, plus whatever info fields it carries.
type BehaviorConfig struct {
	Resource string
	Info     map[string]any
}

// LocalManager applies match rules in order, falling back to a default
// config, per spec §4.3's Local variant. It exists for debug/offline use;
// production runs use RemoteManager.
type LocalManager struct {
	Rules   []MatchRule
	Default BehaviorConfig
}

// NewLocalManager builds a LocalManager.
func NewLocalManager(rules []MatchRule, def BehaviorConfig) *LocalManager {
	return &LocalManager{Rules: rules, Default: def}
}

func (m *LocalManager) resolveConfig(url string) BehaviorConfig {
	for _, r := range m.Rules {
		if r.Pattern != "" && strings.Contains(url, r.Pattern) {
			return r.Config
		}
	}
	return m.Default
}

func (m *LocalManager) BehaviorForURL(_ context.Context, url string, _ PageHost) (*Behavior, error) {
	cfg := m.resolveConfig(url)
	if cfg.Resource == "" {
		return nil, fmt.Errorf("behavior: no resource configured for %q", url)
	}
	js, err := os.ReadFile(filepath.Clean(cfg.Resource))
	if err != nil {
		return nil, fmt.Errorf("behavior: reading resource %q: %w", cfg.Resource, err)
	}
	return &Behavior{JS: string(js)}, nil
}

func (m *LocalManager) BehaviorInfoForURL(_ context.Context, url string) (map[string]any, error) {
	cfg := m.resolveConfig(url)
	return cfg.Info, nil
}

