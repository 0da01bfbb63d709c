package scan

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
)

func TestIsPrivateAddr(t *testing.T) {
	tests := []struct {
		addr    string
		private bool
	}{
		{"10.0.0.5", true},
		{"10.255.255.255", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.10.10", true},

		// CGNAT boundary: 100.64.0.0/10 covers 100.64.0.0 - 100.127.255.255.
		{"100.64.0.1", true},
		{"100.127.255.255", true},
		{"100.63.255.255", false},
		{"100.128.0.1", false},

		// Documentation range is deliberately not in the table.
		{"192.0.2.1", false},

		{"8.8.8.8", false},
		{"1.1.1.1", false},

		{"::1", true},
		{"fc00::1", true},
		{"fdff::1", true},
		{"fe80::1", true},
		{"2001:db8::1", false},
		{"2606:4700::1111", false},

		// IPv4-mapped IPv6 must unmap before matching.
		{"::ffff:192.168.1.1", true},
		{"::ffff:8.8.8.8", false},
	}

	for _, tt := range tests {
		addr := netip.MustParseAddr(tt.addr)
		if got := IsPrivateAddr(addr); got != tt.private {
			t.Errorf("IsPrivateAddr(%s): want %v, got %v", tt.addr, tt.private, got)
		}
	}
}

func TestIsFQDN(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"example.com", true},
		{"sub.example.com", true},
		{"a.b.c.d.example.co.uk", true},
		{"xn--nxasmq6b.example", true},
		{"example", false},
		{"", false},
		{"-example.com", false},
		{"example-.com", false},
		{"exa_mple.com", false},
		{"example..com", false},
		{".example.com", false},
		{"example.com.", false},
		{strings.Repeat("a", 64) + ".com", false},
		{strings.Repeat("a", 63) + ".com", true},
	}

	for _, tt := range tests {
		if got := IsFQDN(tt.value); got != tt.valid {
			t.Errorf("IsFQDN(%q): want %v, got %v", tt.value, tt.valid, got)
		}
	}

	// Total length over 253 fails even with valid labels.
	long := strings.TrimSuffix(strings.Repeat("abcdefgh.", 30), ".") + ".com"
	if IsFQDN(long) {
		t.Errorf("expected %d-char name to be rejected", len(long))
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"example.com", "example.com"},
		{"EXAMPLE.COM", "example.com"},
		{"  example.com  ", "example.com"},
		{"https://example.com", "example.com"},
		{"http://example.com/path?q=1", "example.com"},
		{"https://Example.com:8443/x", "example.com"},
		{"münchen.de", "xn--mnchen-3ya.de"},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.input)
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q): want %q, got %q", tt.input, tt.want, got)
		}
	}
}

func TestNormalizeInvalid(t *testing.T) {
	for _, input := range []string{"", "   ", "://"} {
		if _, err := Normalize(input); !errors.Is(err, ErrInvalidDomain) {
			t.Errorf("Normalize(%q): expected ErrInvalidDomain, got %v", input, err)
		}
	}
}

func TestAssertPublicRejectsLiteralIP(t *testing.T) {
	guard := NewGuard()

	for _, target := range []string{"10.0.0.5", "8.8.8.8", "::1", "2001:db8::1"} {
		_, err := guard.AssertPublic(context.Background(), target)
		if !errors.Is(err, ErrSSRFRejected) {
			t.Errorf("AssertPublic(%q): expected ErrSSRFRejected, got %v", target, err)
		}
	}
}

func TestAssertPublicRejectsMalformedNames(t *testing.T) {
	guard := NewGuard()

	for _, target := range []string{"localhost", "not a domain", "exa_mple.com", ""} {
		_, err := guard.AssertPublic(context.Background(), target)
		if !errors.Is(err, ErrSSRFRejected) {
			t.Errorf("AssertPublic(%q): expected ErrSSRFRejected, got %v", target, err)
		}
	}
}
