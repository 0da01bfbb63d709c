package scan

import "errors"

// Guard failures are fatal to a scan: the record transitions to error (or is
// never created) and the cause surfaces to the caller. Probe-level network
// failures are NOT errors; they degrade into failed-status findings.
var (
	// ErrInvalidDomain means the input could not be parsed as a hostname.
	ErrInvalidDomain = errors.New("invalid domain")

	// ErrSSRFRejected means the target is a literal IP, fails strict FQDN
	// syntax, or resolves (even partially) to a private or reserved address.
	ErrSSRFRejected = errors.New("only public FQDNs are allowed")

	// ErrNoDNSRecords means the target has no A/AAAA records at all.
	ErrNoDNSRecords = errors.New("no DNS A/AAAA records")
)
