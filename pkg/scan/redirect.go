package scan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// RedirectProbe issues one plain HTTP GET with redirects NOT followed and
// checks that the server itself pushes clients to HTTPS. The client passed in
// must not follow redirects; the interesting signal is the first response.
type RedirectProbe struct {
	guard     Guard
	client    *http.Client
	userAgent string
}

func NewRedirectProbe(guard Guard, client *http.Client, userAgent string) *RedirectProbe {
	return &RedirectProbe{guard: guard, client: client, userAgent: userAgent}
}

func (p *RedirectProbe) Name() string             { return "https_redirect" }
func (p *RedirectProbe) Category() types.Category { return types.CategoryHygiene }

func (p *RedirectProbe) Run(ctx context.Context, domain string) ([]types.Finding, error) {
	if _, err := p.guard.AssertPublic(ctx, domain); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+domain, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		// Lower severity than other fetch failures: a closed port 80 is
		// occasionally a deliberate hardening choice.
		return []types.Finding{newFinding(types.Finding{
			ID:             "HTTP_FETCH_FAILED",
			Category:       types.CategoryHygiene,
			Severity:       types.SeverityMedium,
			Title:          "HTTP endpoint not reachable",
			Summary:        "Could not connect to the HTTP endpoint for redirect testing.",
			BusinessImpact: "Clients using plain HTTP may fail to reach your site or downgrade protection.",
			Evidence:       fmt.Sprintf("Fetch to http://%s failed: %v", domain, err),
			Status:         types.FindingStatusFailed,
			ErrorHint:      "HTTP fetch failed; redirect check skipped",
			Recommendation: []string{"Ensure HTTP is reachable and issues a 301 to HTTPS."},
		})}, nil
	}
	defer httpclient.CloseBody(resp)

	status := resp.StatusCode
	location := resp.Header.Get("Location")

	if status >= 300 && status < 400 {
		if redirectsToHTTPS(domain, location) {
			return nil, nil
		}
		return []types.Finding{newFinding(types.Finding{
			ID:             "HTTPS_NOT_ENFORCED",
			Category:       types.CategoryHygiene,
			Severity:       types.SeverityHigh,
			Title:          "HTTP is not redirected to HTTPS",
			Summary:        "Requests over HTTP are not forced to HTTPS for the same host.",
			BusinessImpact: "Users may stay on insecure HTTP, enabling interception or tampering.",
			Evidence:       fmt.Sprintf("GET http://%s -> %d Location: %s", domain, status, location),
			Recommendation: []string{"Add a 301 redirect from HTTP to HTTPS at the edge/load balancer."},
		})}, nil
	}

	// Absence of any redirect is itself the finding, whatever the status.
	return []types.Finding{newFinding(types.Finding{
		ID:             "HTTPS_NOT_ENFORCED",
		Category:       types.CategoryHygiene,
		Severity:       types.SeverityHigh,
		Title:          "HTTP is not redirected to HTTPS",
		Summary:        "The HTTP endpoint did not issue a redirect to HTTPS.",
		BusinessImpact: "Users may remain on insecure HTTP connections.",
		Evidence:       fmt.Sprintf("GET http://%s returned %d without redirect", domain, status),
		Recommendation: []string{
			"Enforce 301 redirects from HTTP to HTTPS.",
			"Consider HSTS preload after enabling redirects.",
		},
	})}, nil
}

// redirectsToHTTPS accepts a Location that upgrades the SAME host to https.
// The bare domain and its www variant both count; a redirect to an unrelated
// host is not HTTPS enforcement even when that host speaks https.
func redirectsToHTTPS(domain, location string) bool {
	u, err := url.Parse(location)
	if err != nil || u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	domain = strings.ToLower(domain)
	return host == domain || host == "www."+domain || "www."+host == domain
}
