package scan

import (
	"context"
	"net/http"
	"net/netip"
	"net/url"

	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// allowAllGuard accepts every target so probe tests can point at loopback
// fixtures without the private-address rejection kicking in.
type allowAllGuard struct{}

func (allowAllGuard) AssertPublic(ctx context.Context, host string) ([]netip.Addr, error) {
	return []netip.Addr{netip.MustParseAddr("203.0.113.10")}, nil
}

// rewriteTransport sends every request to a fixed test server regardless of
// the URL's host, preserving the original Host header.
type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func newRewriteClient(serverURL string, base http.RoundTripper) *http.Client {
	target, err := url.Parse(serverURL)
	if err != nil {
		panic(err)
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{Transport: &rewriteTransport{target: target, base: base}}
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Host == "" {
		clone.Host = req.URL.Host
	}
	clone.URL.Scheme = t.target.Scheme
	clone.URL.Host = t.target.Host
	return t.base.RoundTrip(clone)
}

func findFinding(findings []types.Finding, id string) *types.Finding {
	for i := range findings {
		if findings[i].ID == id {
			return &findings[i]
		}
	}
	return nil
}
