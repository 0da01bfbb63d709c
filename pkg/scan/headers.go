package scan

import (
	"context"
	"fmt"
	"net/http"

	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/httpclient"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// HeaderProbe issues a single HTTPS GET to the domain root (redirects
// followed) and inspects the final response for security headers. One fetch
// feeds every check; the probe never re-requests per header.
type HeaderProbe struct {
	guard     Guard
	client    *http.Client
	userAgent string
}

func NewHeaderProbe(guard Guard, client *http.Client, userAgent string) *HeaderProbe {
	return &HeaderProbe{guard: guard, client: client, userAgent: userAgent}
}

func (p *HeaderProbe) Name() string             { return "security_headers" }
func (p *HeaderProbe) Category() types.Category { return types.CategoryWebSecurity }

func (p *HeaderProbe) Run(ctx context.Context, domain string) ([]types.Finding, error) {
	if _, err := p.guard.AssertPublic(ctx, domain); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+domain, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		// Nothing downstream can be judged without a response.
		return []types.Finding{newFinding(types.Finding{
			ID:             "HTTPS_FETCH_FAILED",
			Category:       types.CategoryWebSecurity,
			Severity:       types.SeverityHigh,
			Title:          "Unable to fetch HTTPS response",
			Summary:        "Failed to retrieve the homepage over HTTPS.",
			BusinessImpact: "Automated clients and browsers may not reach the site reliably.",
			Evidence:       fmt.Sprintf("Fetch to https://%s failed: %v", domain, err),
			Status:         types.FindingStatusFailed,
			ErrorHint:      "HTTPS fetch failed",
			Recommendation: []string{"Ensure HTTPS is reachable and responses are returned with status 200/301."},
		})}, nil
	}
	defer httpclient.CloseBody(resp)

	findings := make([]types.Finding, 0, 7)

	if resp.StatusCode >= 400 {
		findings = append(findings, newFinding(types.Finding{
			ID:             "HTTP_STATUS_ERROR",
			Category:       types.CategoryHygiene,
			Severity:       types.SeverityMedium,
			Title:          "Homepage returned an error status",
			Summary:        fmt.Sprintf("The root path responded with status %d.", resp.StatusCode),
			BusinessImpact: "Users may experience downtime or broken landing pages.",
			Evidence:       fmt.Sprintf("GET https://%s -> %d", domain, resp.StatusCode),
			Recommendation: []string{"Ensure the homepage returns 200/301 for availability checks."},
		}))
	}

	headers := resp.Header

	if headers.Get("Strict-Transport-Security") == "" {
		findings = append(findings, newFinding(types.Finding{
			ID:             "HSTS_MISSING",
			Category:       types.CategoryTransportSecurity,
			Severity:       types.SeverityMedium,
			Title:          "HSTS header is missing",
			Summary:        "Strict-Transport-Security is not set, so browsers may downgrade to HTTP.",
			BusinessImpact: "Opens opportunity for SSL stripping and downgrade attacks.",
			Evidence:       "No Strict-Transport-Security header detected.",
			Recommendation: []string{
				"Add Strict-Transport-Security: max-age=15552000; includeSubDomains; preload",
				"Submit the domain to the HSTS preload list after testing.",
			},
		}))
	}

	if headers.Get("Content-Security-Policy") == "" {
		findings = append(findings, newFinding(types.Finding{
			ID:             "CSP_MISSING",
			Category:       types.CategoryWebSecurity,
			Severity:       types.SeverityMedium,
			Title:          "Content Security Policy is missing",
			Summary:        "No CSP header was found on the homepage response.",
			BusinessImpact: "Increases exposure to XSS and data exfiltration in the browser.",
			Evidence:       "No Content-Security-Policy header detected.",
			Recommendation: []string{
				"Define a CSP that restricts scripts, styles, images, and connections to trusted origins",
				"Start with a report-only mode, then enforce after validating",
			},
		}))
	}

	if headers.Get("X-Frame-Options") == "" {
		findings = append(findings, newFinding(types.Finding{
			ID:             "XFO_MISSING",
			Category:       types.CategoryWebSecurity,
			Severity:       types.SeverityLow,
			Title:          "X-Frame-Options is missing",
			Summary:        "The response does not prevent clickjacking via iframes.",
			BusinessImpact: "Attackers could frame your site to trick users into unintended actions.",
			Evidence:       "No X-Frame-Options header detected.",
			Recommendation: []string{"Set X-Frame-Options: DENY or SAMEORIGIN depending on embedding needs."},
		}))
	}

	if headers.Get("X-Content-Type-Options") == "" {
		findings = append(findings, newFinding(types.Finding{
			ID:             "XCTO_MISSING",
			Category:       types.CategoryWebSecurity,
			Severity:       types.SeverityLow,
			Title:          "X-Content-Type-Options is missing",
			Summary:        "The response does not include X-Content-Type-Options: nosniff.",
			BusinessImpact: "Browsers may MIME-sniff content, increasing XSS risk.",
			Evidence:       "No X-Content-Type-Options header detected.",
			Recommendation: []string{"Set X-Content-Type-Options: nosniff on all responses."},
		}))
	}

	if headers.Get("Referrer-Policy") == "" {
		findings = append(findings, newFinding(types.Finding{
			ID:             "REFERRER_POLICY_MISSING",
			Category:       types.CategoryWebSecurity,
			Severity:       types.SeverityLow,
			Title:          "Referrer-Policy header is missing",
			Summary:        "Referrer information may leak full URLs to third parties.",
			BusinessImpact: "Sensitive query parameters could be exposed in outbound requests.",
			Evidence:       "No Referrer-Policy header detected.",
			Recommendation: []string{"Set Referrer-Policy: strict-origin-when-cross-origin or stricter."},
		}))
	}

	if server := headers.Get("Server"); server != "" {
		findings = append(findings, newFinding(types.Finding{
			ID:             "SERVER_HEADER_PRESENT",
			Category:       types.CategoryWebSecurity,
			Severity:       types.SeverityInfo,
			Title:          "Server header exposes technology",
			Summary:        "The response includes a Server header that may reveal stack details.",
			BusinessImpact: "Exposed versions can aid attackers in targeting known exploits.",
			Evidence:       fmt.Sprintf("Server header: %s", server),
			Recommendation: []string{"Remove or neutralize the Server header if supported by your platform."},
		}))
	}

	return findings, nil
}
