// Package httpclient builds the outbound HTTP clients used by the probes,
// with SSRF protection enforced at dial time.
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"os"
	"time"
)

// Config controls timeout, redirect and SSRF behavior of a built client.
type Config struct {
	Timeout         time.Duration
	EnableSSRF      bool // block dials that resolve to private addresses
	FollowRedirects bool
	MaxRedirects    int
}

// DefaultConfig returns the secure defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		EnableSSRF:      true,
		FollowRedirects: true,
		MaxRedirects:    10,
	}
}

// New creates an HTTP client per config. The SSRF check runs inside
// DialContext so it applies to every connection the transport opens,
// including ones reached by following redirects; a hostname that rebinds to a
// private address between validation and dial is still blocked here.
func New(config Config) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if config.EnableSSRF {
				if err := validateAddress(ctx, addr); err != nil {
					return nil, fmt.Errorf("ssrf protection: %w", err)
				}
			}
			var dialer net.Dialer
			return dialer.DialContext(ctx, network, addr)
		},

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	if !config.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if config.MaxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", config.MaxRedirects)
			}
			return nil
		}
	}

	return client
}

// NewProbeClient builds the client for the HTTPS header probe: redirects
// followed with a cap, SSRF protection on.
func NewProbeClient(timeout time.Duration) *http.Client {
	return New(Config{
		Timeout:         timeout,
		EnableSSRF:      true,
		FollowRedirects: true,
		MaxRedirects:    10,
	})
}

// NewNoRedirectClient builds the client for the redirect probe: the first
// response is the signal, so redirects are never followed.
func NewNoRedirectClient(timeout time.Duration) *http.Client {
	return New(Config{
		Timeout:         timeout,
		EnableSSRF:      true,
		FollowRedirects: false,
	})
}

// validateAddress resolves the dial target and rejects private addresses.
func validateAddress(ctx context.Context, addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("blocked private address: %s", ip)
		}
		return nil
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("blocked private address: %s (%s)", ip, host)
		}
	}
	return nil
}

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

func isPrivateIP(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() || ip.IsUnspecified() {
		return true
	}
	for _, prefix := range privateRanges {
		if prefix.Contains(ip) {
			return true
		}
	}
	return false
}

// CloseBody drains and closes a response body. Draining matters: HTTP/1.1
// connections only return to the pool once the body is fully read.
func CloseBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	if err := resp.Body.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close HTTP response body: %v\n", err)
	}
}
