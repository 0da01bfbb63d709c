package scan

import (
	"context"
	"fmt"
	"net/netip"
	"regexp"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

var (
	spfPattern         = regexp.MustCompile(`(?i)v=spf1`)
	dmarcPattern       = regexp.MustCompile(`(?i)v=DMARC1`)
	dmarcPolicyPattern = regexp.MustCompile(`(?i)p=([^;]+)`)
)

// DNSProbe checks SPF, DMARC and MX posture from public DNS. It never sends
// mail and never probes DKIM selectors; those are provider-specific and a
// blind selector sweep produces false positives.
type DNSProbe struct {
	guard    Guard
	resolver dnsResolver
}

func NewDNSProbe(guard Guard, timeout time.Duration) *DNSProbe {
	return &DNSProbe{guard: guard, resolver: newFallbackResolver(timeout)}
}

func (p *DNSProbe) Name() string             { return "dns_auth" }
func (p *DNSProbe) Category() types.Category { return types.CategoryEmailSecurity }

func (p *DNSProbe) Run(ctx context.Context, domain string) ([]types.Finding, error) {
	if _, err := p.guard.AssertPublic(ctx, domain); err != nil {
		return nil, err
	}

	findings := make([]types.Finding, 0, 4)
	findings = append(findings, p.checkSPF(ctx, domain)...)
	findings = append(findings, p.checkDMARC(ctx, domain)...)
	findings = append(findings, p.checkMX(ctx, domain)...)
	findings = append(findings, dkimNote())
	return findings, nil
}

func (p *DNSProbe) checkSPF(ctx context.Context, domain string) []types.Finding {
	spfRecommendation := []string{
		"Publish an SPF record that lists your authorized mail senders",
		"Align SPF with DMARC by setting an explicit policy",
	}

	values, resolverPath, err := p.resolver.ResolveTXT(ctx, domain)
	if err != nil {
		return []types.Finding{newFinding(types.Finding{
			ID:             "SPF_MISSING",
			Category:       types.CategoryEmailSecurity,
			Severity:       types.SeverityHigh,
			Title:          "SPF record is missing",
			Summary:        "The domain does not publish an SPF policy.",
			BusinessImpact: "Increases risk of email spoofing and invoice fraud using your domain.",
			Evidence:       fmt.Sprintf("TXT lookup for %s failed (%v)", domain, err),
			Status:         types.FindingStatusFailed,
			ErrorHint:      "TXT query failed; ensure DNS reachable publicly.",
			Recommendation: spfRecommendation,
			References:     []string{"SPF RFC 7208"},
		})}
	}

	if !spfPattern.MatchString(strings.Join(values, " ")) {
		return []types.Finding{newFinding(types.Finding{
			ID:             "SPF_MISSING",
			Category:       types.CategoryEmailSecurity,
			Severity:       types.SeverityHigh,
			Title:          "SPF record is missing",
			Summary:        "The domain does not publish an SPF policy.",
			BusinessImpact: "Increases risk of email spoofing and invoice fraud using your domain.",
			Evidence:       fmt.Sprintf("No TXT record containing %q found for %s (resolver: %s)", "v=spf1", domain, resolverPath),
			Recommendation: spfRecommendation,
			References:     []string{"SPF RFC 7208"},
		})}
	}
	return nil
}

func (p *DNSProbe) checkDMARC(ctx context.Context, domain string) []types.Finding {
	dmarcHost := "_dmarc." + domain

	missing := func(evidence string) []types.Finding {
		return []types.Finding{newFinding(types.Finding{
			ID:             "DMARC_MISSING",
			Category:       types.CategoryEmailSecurity,
			Severity:       types.SeverityHigh,
			Title:          "DMARC policy is missing",
			Summary:        "No DMARC record was found for the domain.",
			BusinessImpact: "Attackers can spoof your domain to send fake invoices or payment requests.",
			Evidence:       evidence,
			Status:         types.FindingStatusFailed,
			ErrorHint:      "DMARC lookup failed or missing",
			Recommendation: []string{
				"Publish a DMARC record with p=quarantine or p=reject",
				"Ensure SPF and DKIM are correctly aligned",
			},
			References: []string{"DMARC RFC 7489"},
		})}
	}

	values, resolverPath, err := p.resolver.ResolveTXT(ctx, dmarcHost)
	if err != nil {
		return missing(fmt.Sprintf("No TXT record found for %s (%v)", dmarcHost, err))
	}

	record := strings.Join(values, " ")
	if !dmarcPattern.MatchString(record) {
		return missing(fmt.Sprintf("No TXT record found for %s (DMARC tag missing)", dmarcHost))
	}

	policy := "none"
	if m := dmarcPolicyPattern.FindStringSubmatch(record); m != nil {
		policy = strings.ToLower(strings.TrimSpace(m[1]))
	}
	if policy == "none" {
		return []types.Finding{newFinding(types.Finding{
			ID:             "DMARC_POLICY_NONE",
			Category:       types.CategoryEmailSecurity,
			Severity:       types.SeverityMedium,
			Title:          "DMARC policy set to none",
			Summary:        "DMARC record exists but policy is set to monitoring only (p=none).",
			BusinessImpact: "Spoofed emails may still be delivered because the policy does not enforce rejection.",
			Evidence:       fmt.Sprintf("DMARC record found via %s: %s", resolverPath, record),
			Recommendation: []string{
				"Move DMARC policy to p=quarantine or p=reject after monitoring",
				"Ensure SPF and DKIM are aligned before enforcing",
			},
			References: []string{"DMARC RFC 7489"},
		})}
	}
	return nil
}

func (p *DNSProbe) checkMX(ctx context.Context, domain string) []types.Finding {
	exchangers, err := p.resolver.ResolveMX(ctx, domain)
	if err != nil {
		return []types.Finding{newFinding(types.Finding{
			ID:             "MX_MISSING",
			Category:       types.CategoryEmailSecurity,
			Severity:       types.SeverityInfo,
			Title:          "No MX records found",
			Summary:        "Domain has no MX records; outbound-only domains may ignore this.",
			BusinessImpact: "If you intend to receive mail, delivery will fail.",
			Evidence:       fmt.Sprintf("MX lookup failed (%v)", err),
			Status:         types.FindingStatusFailed,
			ErrorHint:      "MX lookup failed",
			Recommendation: []string{"Add MX records for your mail provider if inbound mail is expected."},
		})}
	}

	for _, exchange := range exchangers {
		if !p.mxIsPrivate(ctx, exchange) {
			continue
		}
		return []types.Finding{newFinding(types.Finding{
			ID:             "MX_PRIVATE",
			Category:       types.CategoryEmailSecurity,
			Severity:       types.SeverityMedium,
			Title:          "MX points to private address",
			Summary:        "One or more MX records resolve to non-public addresses.",
			BusinessImpact: "Mail delivery may fail or expose internal infrastructure.",
			Evidence:       fmt.Sprintf("Private MX detected: %s", exchange),
			Recommendation: []string{"Ensure MX records point to publicly reachable mail exchangers."},
		})}
	}
	return nil
}

// mxIsPrivate checks whether an MX exchanger is itself a private literal or
// resolves to a private address. Resolution failures count as not private;
// MX reachability is not this finding's concern.
func (p *DNSProbe) mxIsPrivate(ctx context.Context, exchange string) bool {
	if addr, err := netip.ParseAddr(exchange); err == nil {
		return IsPrivateAddr(addr)
	}
	ips, err := p.resolver.ResolveHost(ctx, exchange)
	if err != nil {
		return false
	}
	for _, ip := range ips {
		if addr, ok := netip.AddrFromSlice(ip); ok && IsPrivateAddr(addr) {
			return true
		}
	}
	return false
}

func dkimNote() types.Finding {
	return newFinding(types.Finding{
		ID:             "DKIM_NOTE",
		Category:       types.CategoryEmailSecurity,
		Severity:       types.SeverityInfo,
		Title:          "DKIM validation varies by selector",
		Summary:        "Selectors are provider-specific; verification not performed in this passive check.",
		BusinessImpact: "Missing DKIM alignment weakens DMARC enforcement.",
		Evidence:       "DKIM selectors were not probed to avoid false positives.",
		Recommendation: []string{
			"Ensure DKIM is enabled with strong keys for all sending services",
			"Align DKIM with DMARC for enforcement",
		},
		References: []string{"DKIM RFC 6376"},
	})
}
