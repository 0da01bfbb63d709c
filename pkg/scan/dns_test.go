package scan

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// fakeResolver answers from fixed maps; missing entries return an error like
// a real NXDOMAIN lookup would.
type fakeResolver struct {
	txt   map[string][]string
	mx    map[string][]string
	hosts map[string][]net.IP
}

func (f *fakeResolver) ResolveTXT(ctx context.Context, host string) ([]string, string, error) {
	values, ok := f.txt[host]
	if !ok {
		return nil, "", errors.New("no TXT records")
	}
	return values, "system", nil
}

func (f *fakeResolver) ResolveMX(ctx context.Context, host string) ([]string, error) {
	values, ok := f.mx[host]
	if !ok {
		return nil, errors.New("no MX records")
	}
	return values, nil
}

func (f *fakeResolver) ResolveHost(ctx context.Context, host string) ([]net.IP, error) {
	ips, ok := f.hosts[host]
	if !ok {
		return nil, errors.New("no A records")
	}
	return ips, nil
}

func newDNSProbeWithResolver(r dnsResolver) *DNSProbe {
	return &DNSProbe{guard: allowAllGuard{}, resolver: r}
}

func TestDNSProbeMissingEverything(t *testing.T) {
	probe := newDNSProbeWithResolver(&fakeResolver{})

	findings, err := probe.Run(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spf := findFinding(findings, "SPF_MISSING")
	if spf == nil {
		t.Fatal("expected SPF_MISSING")
	}
	if spf.Severity != types.SeverityHigh {
		t.Errorf("SPF_MISSING severity: want high, got %s", spf.Severity)
	}
	if spf.Weight != 15 {
		t.Errorf("SPF_MISSING weight: want 15, got %d", spf.Weight)
	}
	if spf.Status != types.FindingStatusFailed {
		t.Errorf("SPF_MISSING status: want failed (lookup error path), got %s", spf.Status)
	}

	dmarc := findFinding(findings, "DMARC_MISSING")
	if dmarc == nil {
		t.Fatal("expected DMARC_MISSING")
	}
	if dmarc.Severity != types.SeverityHigh {
		t.Errorf("DMARC_MISSING severity: want high, got %s", dmarc.Severity)
	}
	if dmarc.Weight != 25 {
		t.Errorf("DMARC_MISSING weight: want 25, got %d", dmarc.Weight)
	}

	if findFinding(findings, "DMARC_POLICY_NONE") != nil {
		t.Error("DMARC_POLICY_NONE must not coexist with DMARC_MISSING")
	}
	if findFinding(findings, "MX_MISSING") == nil {
		t.Error("expected MX_MISSING info finding")
	}
	if findFinding(findings, "DKIM_NOTE") == nil {
		t.Error("expected DKIM_NOTE to always be present")
	}
}

func TestDNSProbeHealthyDomain(t *testing.T) {
	probe := newDNSProbeWithResolver(&fakeResolver{
		txt: map[string][]string{
			"example.com":        {"v=spf1 include:_spf.example.com -all"},
			"_dmarc.example.com": {"v=DMARC1; p=reject; rua=mailto:dmarc@example.com"},
		},
		mx:    map[string][]string{"example.com": {"mail.example.com"}},
		hosts: map[string][]net.IP{"mail.example.com": {net.ParseIP("203.0.113.25")}},
	})

	findings, err := probe.Run(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"SPF_MISSING", "DMARC_MISSING", "DMARC_POLICY_NONE", "MX_MISSING", "MX_PRIVATE"} {
		if findFinding(findings, id) != nil {
			t.Errorf("healthy domain should not produce %s", id)
		}
	}

	// The informational DKIM note is the only expected output.
	if len(findings) != 1 || findings[0].ID != "DKIM_NOTE" {
		t.Errorf("expected only DKIM_NOTE, got %d findings", len(findings))
	}
}

func TestDNSProbeDMARCPolicyNone(t *testing.T) {
	probe := newDNSProbeWithResolver(&fakeResolver{
		txt: map[string][]string{
			"example.com":        {"v=spf1 -all"},
			"_dmarc.example.com": {"v=DMARC1; p=none; rua=mailto:reports@example.com"},
		},
		mx: map[string][]string{"example.com": {"mail.example.com"}},
	})

	findings, err := probe.Run(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := findFinding(findings, "DMARC_POLICY_NONE")
	if f == nil {
		t.Fatal("expected DMARC_POLICY_NONE for p=none")
	}
	if f.Severity != types.SeverityMedium {
		t.Errorf("severity: want medium, got %s", f.Severity)
	}
	if f.Weight != 15 {
		t.Errorf("weight: want 15, got %d", f.Weight)
	}
	if !strings.Contains(f.Evidence, "p=none") {
		t.Errorf("evidence should quote the record, got %q", f.Evidence)
	}
	if findFinding(findings, "DMARC_MISSING") != nil {
		t.Error("DMARC_MISSING must not fire when a record exists")
	}
}

func TestDNSProbeSPFCaseInsensitive(t *testing.T) {
	probe := newDNSProbeWithResolver(&fakeResolver{
		txt: map[string][]string{
			"example.com":        {"V=SPF1 -all"},
			"_dmarc.example.com": {"v=DMARC1; p=quarantine"},
		},
		mx: map[string][]string{"example.com": {"mail.example.com"}},
	})

	findings, err := probe.Run(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if findFinding(findings, "SPF_MISSING") != nil {
		t.Error("uppercase SPF tag should still be recognized")
	}
}

func TestDNSProbePrivateMX(t *testing.T) {
	probe := newDNSProbeWithResolver(&fakeResolver{
		txt: map[string][]string{
			"example.com":        {"v=spf1 -all"},
			"_dmarc.example.com": {"v=DMARC1; p=reject"},
		},
		mx:    map[string][]string{"example.com": {"mail.internal.example.com"}},
		hosts: map[string][]net.IP{"mail.internal.example.com": {net.ParseIP("192.168.10.5")}},
	})

	findings, err := probe.Run(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f := findFinding(findings, "MX_PRIVATE")
	if f == nil {
		t.Fatal("expected MX_PRIVATE for RFC1918 exchanger")
	}
	if f.Severity != types.SeverityMedium {
		t.Errorf("severity: want medium, got %s", f.Severity)
	}
}
