// Package scope implements the Scope predicate: whether a candidate URL is
// eligible to be enqueued into a crawl's Frontier.
package scope

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/autodriver/models"
	"github.com/use-agent/autodriver/surt"
)

// timelineSuffix is the hardcoded exclusion applied ahead of every rule,
// mirroring spec §4.1's synthetic "#timeline" exclusion.
const timelineSuffix = "#timeline"

// Scope evaluates rules loaded once from a:{id}:scope. It is pure after
// Init: repeated In calls never mutate state.
type Scope struct {
	autoID string
	rdb    *redis.Client

	rules []compiledRule
}

type compiledRule struct {
	rule models.ScopeRule
	re   *regexp.Regexp // set for regex/parent-url-regex
}

// New constructs a Scope bound to the given autoid's Redis rule set.
func New(rdb *redis.Client, autoID string) *Scope {
	return &Scope{autoID: autoID, rdb: rdb}
}

// Init loads all rules from a:{id}:scope. Malformed rule JSON is skipped
// with a warning; if no rule survives, In matches everything.
func (s *Scope) Init(ctx context.Context) error {
	key := "a:" + s.autoID + ":scope"
	raws, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return err
	}

	rules := make([]compiledRule, 0, len(raws))
	for _, raw := range raws {
		var r models.ScopeRule
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			slog.Warn("scope: skipping malformed rule", "raw", raw, "error", err)
			continue
		}
		cr := compiledRule{rule: r}
		switch r.Type {
		case models.ScopeRuleRegex, models.ScopeRuleParentURLRegex:
			re, err := regexp.Compile(r.Value)
			if err != nil {
				slog.Warn("scope: skipping invalid regex rule", "value", r.Value, "error", err)
				continue
			}
			cr.re = re
		}
		rules = append(rules, cr)
	}
	s.rules = rules
	return nil
}

// In reports whether url is in-scope. An empty rule set matches everything.
func (s *Scope) In(rawURL string) bool {
	if strings.HasSuffix(rawURL, timelineSuffix) {
		return false
	}
	if len(s.rules) == 0 {
		return true
	}
	for _, cr := range s.rules {
		if s.matches(cr, rawURL) {
			return true
		}
	}
	return false
}

func (s *Scope) matches(cr compiledRule, rawURL string) bool {
	switch cr.rule.Type {
	case models.ScopeRuleSURTPrefix:
		return surt.HasPrefix(rawURL, cr.rule.Value)
	case models.ScopeRuleSSURT:
		return surt.SSURT(rawURL) == surt.SSURT(cr.rule.Value)
	case models.ScopeRuleRegex:
		return cr.re != nil && cr.re.MatchString(rawURL)
	case models.ScopeRuleDomain:
		u, err := url.Parse(rawURL)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Hostname(), cr.rule.Value)
	case models.ScopeRuleSubstring:
		return strings.Contains(rawURL, cr.rule.Value)
	case models.ScopeRuleParentURLRegex:
		parent := parentURL(rawURL)
		return cr.re != nil && cr.re.MatchString(parent)
	case models.ScopeRuleURLMatch:
		return rawURL == cr.rule.Value
	default:
		return false
	}
}

// parentURL strips the last path segment, used by the parent-url-regex rule.
func parentURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	idx := strings.LastIndex(u.Path, "/")
	if idx < 0 {
		return rawURL
	}
	u.Path = u.Path[:idx+1]
	return u.String()
}
