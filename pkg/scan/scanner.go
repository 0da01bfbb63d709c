package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// Probe is one independent passive check. Run returns findings for the
// domain; a non-nil error means the target itself is unacceptable (guard
// rejection) and aborts the whole scan. Network trouble is never an error,
// it degrades into failed-status findings.
type Probe interface {
	Name() string
	Category() types.Category
	Run(ctx context.Context, domain string) ([]types.Finding, error)
}

// Waiter throttles outbound traffic per target host.
type Waiter interface {
	WaitForHost(ctx context.Context, host string) error
}

// Scanner fans the configured probes out concurrently and assembles their
// findings into a scored ScanResult.
type Scanner struct {
	probes          []Probe
	waiter          Waiter
	analysisVersion string
	topLimit        int
	now             func() time.Time
}

// NewScanner wires a scanner from probes. waiter may be nil when no
// throttling is wanted (tests, single ad hoc scans).
func NewScanner(probes []Probe, waiter Waiter, analysisVersion string) *Scanner {
	return &Scanner{
		probes:          probes,
		waiter:          waiter,
		analysisVersion: analysisVersion,
		topLimit:        3,
		now:             time.Now,
	}
}

// AnalysisVersion returns the version stamped into results and cache keys.
func (s *Scanner) AnalysisVersion() string { return s.analysisVersion }

// Scan runs every probe against an already-normalized domain. Probes run
// concurrently and are independent: one probe panicking is contained and
// reported as a failed finding in that probe's category rather than taking
// the others down.
func (s *Scanner) Scan(ctx context.Context, domain string) (*types.ScanResult, error) {
	if s.waiter != nil {
		if err := s.waiter.WaitForHost(ctx, domain); err != nil {
			return nil, err
		}
	}

	var mu sync.Mutex
	var findings []types.Finding

	g, gctx := errgroup.WithContext(ctx)
	for _, probe := range s.probes {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					findings = append(findings, probePanicFinding(probe, domain, r))
					mu.Unlock()
					err = nil
				}
			}()

			probeFindings, err := probe.Run(gctx, domain)
			if err != nil {
				return fmt.Errorf("%s probe: %w", probe.Name(), err)
			}
			mu.Lock()
			findings = append(findings, probeFindings...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.ScanResult{
		Domain:          domain,
		AnalysisVersion: s.analysisVersion,
		Findings:        findings,
		Score:           ComputeOverallScore(findings),
		GeneratedAt:     s.now().UTC(),
		TopFindings:     SelectTopFindings(findings, s.topLimit),
	}, nil
}

func probePanicFinding(probe Probe, domain string, r any) types.Finding {
	return newFinding(types.Finding{
		ID:             "PROBE_PANIC",
		Category:       probe.Category(),
		Severity:       types.SeverityInfo,
		Title:          "Probe aborted unexpectedly",
		Summary:        fmt.Sprintf("The %s probe stopped before completing its checks.", probe.Name()),
		BusinessImpact: "This portion of the assessment is incomplete; the score does not account for it.",
		Evidence:       fmt.Sprintf("Probe %s failed for %s: %v", probe.Name(), domain, r),
		Status:         types.FindingStatusFailed,
		ErrorHint:      "probe crashed; re-run the scan",
	})
}
