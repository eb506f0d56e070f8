package surt

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"http://www.example.com/a/b?x=1": "com,example)/a/b?x=1",
		"https://example.com/":            "com,example)/",
		"http://sub.example.com":          "com,example,sub)",
	}
	for in, want := range cases {
		if got := Canonicalize(in); got != want {
			t.Errorf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalizeMalformed(t *testing.T) {
	// no host, should be returned unchanged rather than panicking.
	if got := Canonicalize("not a url"); got != "not a url" {
		t.Errorf("Canonicalize(malformed) = %q, want unchanged input", got)
	}
}

func TestHasPrefix(t *testing.T) {
	if !HasPrefix("http://www.example.com/a/b", "com,example)/a") {
		t.Error("expected prefix match")
	}
	if HasPrefix("http://www.example.com/a/b", "com,other)/") {
		t.Error("expected no prefix match")
	}
}
