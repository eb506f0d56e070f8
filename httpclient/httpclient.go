// Package httpclient builds the Chrome-fingerprinted HTTP client used to
// fetch behavior JS/info from the remote behavior service, grounded on the
// teacher's scraper/httpfetch.go dialTLSChrome pattern.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	tls2 "github.com/refraction-networking/utls"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const maxResponseBytes = 10 * 1024 * 1024 // 10 MB

// Client is a small Chrome-fingerprinted HTTP client for behavior-service
// traffic. ALPN is locked to http/1.1, matching the behavior service's
// plain request/response shape (no HTTP/2 multiplexing needed here).
type Client struct {
	http *http.Client
}

// New builds a Client with the given request timeout.
func New(timeout time.Duration) *Client {
	transport := &http.Transport{
		DialTLSContext: dialTLSChrome,
	}
	return &Client{http: &http.Client{Transport: transport, Timeout: timeout}}
}

// Get issues a GET request and returns the response body, capped at 10 MB.
func (c *Client) Get(ctx context.Context, targetURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: build request: %w", err)
	}
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/json,*/*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("httpclient: HTTP %d for %s", resp.StatusCode, targetURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}
	return body, nil
}

// dialTLSChrome establishes a TLS connection using a Chrome ClientHello via
// utls, with ALPN forced to http/1.1.
func dialTLSChrome(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	tlsConn := tls2.UClient(rawConn, &tls2.Config{
		ServerName: host,
		NextProtos: []string{"http/1.1"},
	}, tls2.HelloChrome_Auto)

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
