package scan

import (
	"context"
	"crypto/tls"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// expiryWarnWindow is how close to expiry a still-valid certificate gets
// flagged as expiring soon.
const expiryWarnWindow = 14 * 24 * time.Hour

// TLSProbe performs one TLS client handshake and inspects the leaf
// certificate's validity window. Chain trust is deliberately not validated:
// the probe reports expiry posture even for self-signed or mis-chained
// certificates, so verification is skipped and the raw peer certificate is
// read instead.
type TLSProbe struct {
	guard   Guard
	port    int
	timeout time.Duration
	now     func() time.Time
}

func NewTLSProbe(guard Guard, port int, timeout time.Duration) *TLSProbe {
	return &TLSProbe{guard: guard, port: port, timeout: timeout, now: time.Now}
}

func (p *TLSProbe) Name() string             { return "tls_cert" }
func (p *TLSProbe) Category() types.Category { return types.CategoryTransportSecurity }

func (p *TLSProbe) Run(ctx context.Context, domain string) ([]types.Finding, error) {
	if _, err := p.guard.AssertPublic(ctx, domain); err != nil {
		return nil, err
	}

	notAfter, err := p.handshake(ctx, domain)
	if err != nil {
		return []types.Finding{newFinding(types.Finding{
			ID:             "TLS_HANDSHAKE_FAILED",
			Category:       types.CategoryTransportSecurity,
			Severity:       types.SeverityHigh,
			Title:          "HTTPS endpoint is unreachable",
			Summary:        "TLS handshake failed; HTTPS may not be correctly configured.",
			BusinessImpact: "Users may fall back to HTTP or be unable to reach the service securely.",
			Evidence:       fmt.Sprintf("TLS handshake failed for %s: %v", domain, err),
			Status:         types.FindingStatusFailed,
			ErrorHint:      "TLS unreachable or misconfigured",
			Recommendation: []string{
				"Ensure port 443 is open and serving a valid certificate.",
				"Verify TLS configuration supports TLS 1.2+",
			},
		})}, nil
	}

	days := daysUntil(p.now(), notAfter)
	switch {
	case days < 0:
		return []types.Finding{newFinding(types.Finding{
			ID:             "SSL_EXPIRED",
			Category:       types.CategoryTransportSecurity,
			Severity:       types.SeverityHigh,
			Title:          "TLS certificate is expired",
			Summary:        "The leaf certificate has passed its validity period.",
			BusinessImpact: "Users may see browser warnings; traffic can be intercepted via MITM.",
			Evidence:       fmt.Sprintf("Certificate expired on %s", notAfter.Format(time.RFC3339)),
			Recommendation: []string{
				"Renew the TLS certificate immediately.",
				"Automate certificate renewal (e.g., ACME).",
			},
		})}, nil
	case days < 14:
		return []types.Finding{newFinding(types.Finding{
			ID:             "SSL_EXPIRING_SOON",
			Category:       types.CategoryTransportSecurity,
			Severity:       types.SeverityMedium,
			Title:          "TLS certificate expires soon",
			Summary:        "The certificate validity ends within 14 days.",
			BusinessImpact: "Risk of service disruption and user trust loss if renewal is missed.",
			Evidence:       fmt.Sprintf("Certificate expires on %s (%d days remaining)", notAfter.Format(time.RFC3339), days),
			Recommendation: []string{
				"Renew the TLS certificate before expiry.",
				"Implement automated renewal checks.",
			},
		})}, nil
	}
	return nil, nil
}

// handshake dials the TLS port and returns the leaf certificate's NotAfter.
func (p *TLSProbe) handshake(ctx context.Context, domain string) (time.Time, error) {
	dialer := &net.Dialer{Timeout: p.timeout}
	addr := net.JoinHostPort(domain, strconv.Itoa(p.port))

	dctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rawConn, err := dialer.DialContext(dctx, "tcp", addr)
	if err != nil {
		return time.Time{}, err
	}
	defer rawConn.Close()

	conn := tls.Client(rawConn, &tls.Config{
		ServerName:         domain,
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true, // expiry inspection only, trust is not evaluated
	})
	if err := conn.HandshakeContext(dctx); err != nil {
		return time.Time{}, err
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return time.Time{}, fmt.Errorf("no certificate presented by %s", addr)
	}
	return certs[0].NotAfter, nil
}

// daysUntil rounds to whole days so a certificate expiring in 13.6 days
// reports 14, matching how humans read "days remaining".
func daysUntil(now, t time.Time) int {
	return int(math.Round(t.Sub(now).Hours() / 24))
}
