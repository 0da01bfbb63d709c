package scan

import (
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// findingWeights is the static point-deduction table keyed by finding id.
// Ids absent from the table deduct nothing; failure findings in particular
// carry zero weight so an unreachable signal source reports transparently
// without punishing the score. Treated as immutable configuration.
var findingWeights = map[string]int{
	"DMARC_MISSING":           25,
	"DMARC_POLICY_NONE":       15,
	"SPF_MISSING":             15,
	"HTTPS_NOT_ENFORCED":      15,
	"HSTS_MISSING":            10,
	"SSL_EXPIRING_SOON":       10,
	"CSP_MISSING":             8,
	"XFO_MISSING":             5,
	"XCTO_MISSING":            5,
	"REFERRER_POLICY_MISSING": 3,
}

// WeightOf resolves the deduction for a finding id. Consulted once at
// construction time; scoring never looks weights up again.
func WeightOf(id string) int {
	return findingWeights[id]
}

// newFinding fills weight and status defaults. Explicit weights are kept;
// the zero value defers to the table.
func newFinding(f types.Finding) types.Finding {
	if f.Weight == 0 {
		f.Weight = WeightOf(f.ID)
	}
	if f.Status == "" {
		f.Status = types.FindingStatusOK
	}
	return f
}
