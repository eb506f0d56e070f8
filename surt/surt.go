// Package surt implements Sort-friendly URI Reordering canonicalization,
// the form scope rules are matched against. Out of scope per the spec (it
// names SURT as "a library providing SURT primitives"); no example repo in
// the retrieval pack ships one, so this is a small from-scratch
// implementation kept deliberately minimal.
package surt

import (
	"net/url"
	"strings"
)

// Canonicalize converts an absolute URL into SURT form, e.g.
// "http://www.example.com/a/b?x=1" -> "com,example)/a/b?x=1".
//
// The host's labels are reversed and comma-joined, a leading "www." is
// dropped, the scheme, any port and any fragment are dropped, and ")"
// separates the host from the path.
// Malformed input returns the original string unchanged so callers can
// still run substring/regex rules against it.
func Canonicalize(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	labels := strings.Split(host, ".")
	for i, j := 0, len(labels)-1; i < j; i, j = i+1, j-1 {
		labels[i], labels[j] = labels[j], labels[i]
	}

	var b strings.Builder
	b.WriteString(strings.Join(labels, ","))
	b.WriteByte(')')
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(u.RawQuery)
	}
	return b.String()
}

// SSURT is the "schemeless" SURT form used by the ssurt rule type. It
// returns Canonicalize's result unchanged, since that form already omits
// the scheme, the port and the fragment.
func SSURT(rawURL string) string {
	return Canonicalize(rawURL)
}

// HasPrefix reports whether the SURT form of rawURL starts with prefix.
func HasPrefix(rawURL, prefix string) bool {
	return strings.HasPrefix(Canonicalize(rawURL), prefix)
}
