package scope

import (
	"regexp"
	"testing"

	"github.com/use-agent/autodriver/models"
)

func TestInEmptyRulesMatchesEverything(t *testing.T) {
	s := &Scope{}
	if !s.In("http://example.com/any/path") {
		t.Error("empty rule set should match everything")
	}
}

func TestInTimelineSuffixAlwaysExcluded(t *testing.T) {
	s := &Scope{}
	if s.In("http://example.com/page#timeline") {
		t.Error("#timeline suffix must be excluded regardless of rules")
	}
}

func TestInDomainRule(t *testing.T) {
	s := &Scope{rules: []compiledRule{
		{rule: models.ScopeRule{Type: models.ScopeRuleDomain, Value: "example.com"}},
	}}
	if !s.In("http://example.com/a") {
		t.Error("expected domain match")
	}
	if s.In("http://other.com/a") {
		t.Error("expected no domain match")
	}
}

func TestInSubstringRule(t *testing.T) {
	s := &Scope{rules: []compiledRule{
		{rule: models.ScopeRule{Type: models.ScopeRuleSubstring, Value: "/blog/"}},
	}}
	if !s.In("http://example.com/blog/post-1") {
		t.Error("expected substring match")
	}
	if s.In("http://example.com/about") {
		t.Error("expected no substring match")
	}
}

func TestInRegexRule(t *testing.T) {
	re := regexp.MustCompile(`^http://example\.com/products/\d+$`)
	s := &Scope{rules: []compiledRule{
		{rule: models.ScopeRule{Type: models.ScopeRuleRegex, Value: re.String()}, re: re},
	}}
	if !s.In("http://example.com/products/42") {
		t.Error("expected regex match")
	}
	if s.In("http://example.com/products/abc") {
		t.Error("expected no regex match")
	}
}

func TestInSURTPrefixRule(t *testing.T) {
	s := &Scope{rules: []compiledRule{
		{rule: models.ScopeRule{Type: models.ScopeRuleSURTPrefix, Value: "com,example)/a"}},
	}}
	if !s.In("http://www.example.com/a/b") {
		t.Error("expected surt prefix match")
	}
	if s.In("http://www.example.com/z") {
		t.Error("expected no surt prefix match")
	}
}

func TestInParentURLRegexRule(t *testing.T) {
	re := regexp.MustCompile(`^http://example\.com/blog/$`)
	s := &Scope{rules: []compiledRule{
		{rule: models.ScopeRule{Type: models.ScopeRuleParentURLRegex, Value: re.String()}, re: re},
	}}
	if !s.In("http://example.com/blog/post-1") {
		t.Error("expected parent-url-regex match against the stripped parent path")
	}
}

func TestInURLMatchRule(t *testing.T) {
	s := &Scope{rules: []compiledRule{
		{rule: models.ScopeRule{Type: models.ScopeRuleURLMatch, Value: "http://example.com/exact"}},
	}}
	if !s.In("http://example.com/exact") {
		t.Error("expected exact url match")
	}
	if s.In("http://example.com/exact/") {
		t.Error("expected no match for trailing-slash variant")
	}
}

func TestParentURL(t *testing.T) {
	got := parentURL("http://example.com/blog/post-1")
	want := "http://example.com/blog/"
	if got != want {
		t.Errorf("parentURL = %q, want %q", got, want)
	}
}
