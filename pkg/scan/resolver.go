package scan

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// dnsResolver abstracts the lookups the DNS probe needs. ResolveTXT returns
// the flattened TXT strings plus a label describing which resolver path
// answered, which ends up in finding evidence.
type dnsResolver interface {
	ResolveTXT(ctx context.Context, host string) (values []string, resolverPath string, err error)
	ResolveMX(ctx context.Context, host string) ([]string, error)
	ResolveHost(ctx context.Context, host string) ([]net.IP, error)
}

var publicDNSServers = []string{"1.1.1.1:53", "8.8.8.8:53"}

// fallbackResolver tries the system resolver first and falls back to public
// recursors when the local path fails. Corporate split-horizon DNS often
// answers differently (or not at all) for external domains, and the scan
// should reflect what the public internet sees.
type fallbackResolver struct {
	system  *net.Resolver
	client  *dns.Client
	timeout time.Duration
}

func newFallbackResolver(timeout time.Duration) *fallbackResolver {
	return &fallbackResolver{
		system:  net.DefaultResolver,
		client:  &dns.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (r *fallbackResolver) ResolveTXT(ctx context.Context, host string) ([]string, string, error) {
	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	values, err := r.system.LookupTXT(lctx, host)
	if err == nil {
		return values, "system", nil
	}

	values, err = r.publicTXT(ctx, host)
	if err != nil {
		return nil, "", err
	}
	return values, "public(1.1.1.1/8.8.8.8)", nil
}

func (r *fallbackResolver) publicTXT(ctx context.Context, host string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeTXT)
	msg.RecursionDesired = true

	var lastErr error
	for _, server := range publicDNSServers {
		resp, _, err := r.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("TXT query for %s returned %s", host, dns.RcodeToString[resp.Rcode])
			continue
		}
		var values []string
		for _, rr := range resp.Answer {
			if txt, ok := rr.(*dns.TXT); ok {
				values = append(values, strings.Join(txt.Txt, ""))
			}
		}
		return values, nil
	}
	return nil, lastErr
}

func (r *fallbackResolver) ResolveMX(ctx context.Context, host string) ([]string, error) {
	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.system.LookupMX(lctx, host)
	if err != nil {
		return nil, err
	}
	hosts := make([]string, 0, len(records))
	for _, mx := range records {
		hosts = append(hosts, strings.TrimSuffix(mx.Host, "."))
	}
	return hosts, nil
}

func (r *fallbackResolver) ResolveHost(ctx context.Context, host string) ([]net.IP, error) {
	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addrs, err := r.system.LookupIP(lctx, "ip", host)
	if err != nil {
		return nil, err
	}
	return addrs, nil
}
