package scan

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

// privateCIDRs is the fixed set of reserved ranges the guard rejects.
// Resolving into ANY of these aborts the scan, even when other resolved
// addresses are public: the probes make live outbound connections on the
// caller's behalf, so a partially-private target is still off limits.
var privateCIDRs = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("100.64.0.0/10"), // CGNAT
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// Labels of 1-63 alphanumeric-or-hyphen chars, no edge hyphens, at least one
// dot. Total length is checked separately.
var fqdnRegex = regexp.MustCompile(`^(?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

// IsPrivateAddr reports whether addr falls in any reserved range.
func IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range privateCIDRs {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// IsFQDN reports whether value satisfies strict public-hostname syntax.
func IsFQDN(value string) bool {
	if len(value) < 1 || len(value) > 253 {
		return false
	}
	return fqdnRegex.MatchString(value)
}

// Normalize accepts a bare hostname or a URL-like string, extracts the host,
// lowercases it and converts internationalized labels to their
// ASCII-compatible encoding. It fails with ErrInvalidDomain when no host can
// be extracted at all; syntax enforcement happens later in AssertPublic.
func Normalize(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("%w: empty input", ErrInvalidDomain)
	}

	raw := input
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: no host in %q", ErrInvalidDomain, input)
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		// Keep the raw lowercased host; AssertPublic rejects anything that
		// is not a well-formed ASCII FQDN.
		return host, nil
	}
	return ascii, nil
}

// Guard validates that a hostname is a safe, public scan target. Probes call
// AssertPublic before every network request; the result is never cached
// across calls so a rebinding DNS answer cannot slip through a stale check.
type Guard interface {
	AssertPublic(ctx context.Context, host string) ([]netip.Addr, error)
}

type hostGuard struct {
	resolver *net.Resolver
}

// NewGuard returns a Guard backed by the system resolver.
func NewGuard() Guard {
	return &hostGuard{resolver: net.DefaultResolver}
}

func (g *hostGuard) AssertPublic(ctx context.Context, host string) ([]netip.Addr, error) {
	if _, err := netip.ParseAddr(host); err == nil {
		return nil, fmt.Errorf("%w: literal IP %q", ErrSSRFRejected, host)
	}
	if !IsFQDN(host) {
		return nil, fmt.Errorf("%w: %q is not a valid FQDN", ErrSSRFRejected, host)
	}

	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoDNSRecords, host)
	}

	for _, addr := range addrs {
		if IsPrivateAddr(addr) {
			return nil, fmt.Errorf("%w: %q resolves to private address %s", ErrSSRFRejected, host, addr)
		}
	}
	return addrs, nil
}
