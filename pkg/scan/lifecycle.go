package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/core"
	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/logger"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// CacheKey identifies one scannable unit of work: same analysis version plus
// same normalized domain means a cached result is reusable. Bumping the
// version invalidates every cached scan at once.
func CacheKey(analysisVersion, domain string) string {
	return analysisVersion + ":" + domain
}

// Engine owns the scan lifecycle state machine (queued -> running ->
// done|error) on top of the storage collaborator. Transitions only ever move
// forward; done and error are terminal.
type Engine struct {
	store    core.ScanStore
	scanner  *Scanner
	guard    Guard
	notifier core.Notifier
	log      *logger.Logger
	cacheTTL time.Duration
	now      func() time.Time
}

// NewEngine wires the lifecycle manager. notifier may be nil.
func NewEngine(store core.ScanStore, scanner *Scanner, guard Guard, notifier core.Notifier, log *logger.Logger, cacheTTL time.Duration) *Engine {
	return &Engine{
		store:    store,
		scanner:  scanner,
		guard:    guard,
		notifier: notifier,
		log:      log.WithComponent("lifecycle"),
		cacheTTL: cacheTTL,
		now:      time.Now,
	}
}

// FindCachedScan returns the most recent done scan for the domain inside the
// cache window, or nil when none qualifies.
func (e *Engine) FindCachedScan(ctx context.Context, domain string) (*types.Scan, error) {
	cacheKey := CacheKey(e.scanner.AnalysisVersion(), domain)
	since := e.now().Add(-e.cacheTTL)
	return e.store.FindRecentDoneByCacheKey(ctx, cacheKey, since)
}

// CreateQueuedScan normalizes and guard-checks the domain, then persists a
// fresh queued scan record. The guard runs here so an invalid or private
// target is rejected before any record exists.
func (e *Engine) CreateQueuedScan(ctx context.Context, rawDomain, emailOptIn string) (*types.Scan, error) {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return nil, err
	}
	if _, err := e.guard.AssertPublic(ctx, domain); err != nil {
		return nil, err
	}

	scan := &types.Scan{
		ID:              uuid.New().String(),
		Domain:          domain,
		CacheKey:        CacheKey(e.scanner.AnalysisVersion(), domain),
		AnalysisVersion: e.scanner.AnalysisVersion(),
		Status:          types.ScanStatusQueued,
		EmailOptIn:      emailOptIn,
		CreatedAt:       e.now().UTC(),
	}
	if err := e.store.CreateScan(ctx, scan); err != nil {
		return nil, fmt.Errorf("failed to create scan record: %w", err)
	}

	e.log.WithScanID(scan.ID).WithTarget(domain).Infow("Scan queued",
		"cache_key", scan.CacheKey)
	return scan, nil
}

// GetOrCreateScan implements the idempotent entry point: a done scan inside
// the cache window is returned as-is, an already queued or running scan for
// the same cache key is returned instead of stacking a duplicate, and only
// otherwise is a new queued scan created. The dedup is advisory; two
// concurrent callers may still race into two scans, which is tolerated.
func (e *Engine) GetOrCreateScan(ctx context.Context, rawDomain, emailOptIn string) (scan *types.Scan, created bool, err error) {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return nil, false, err
	}

	if cached, err := e.FindCachedScan(ctx, domain); err == nil && cached != nil {
		e.log.WithScanID(cached.ID).WithTarget(domain).Debugw("Cache hit",
			"created_at", cached.CreatedAt)
		return cached, false, nil
	}

	cacheKey := CacheKey(e.scanner.AnalysisVersion(), domain)
	if active, err := e.store.FindActiveByCacheKey(ctx, cacheKey); err == nil && active != nil {
		e.log.WithScanID(active.ID).WithTarget(domain).Debugw("Joining active scan",
			"status", active.Status)
		return active, false, nil
	}

	scan, err = e.CreateQueuedScan(ctx, domain, emailOptIn)
	if err != nil {
		return nil, false, err
	}
	return scan, true, nil
}

// RunScanAndPersist executes a queued scan end to end: running transition,
// probe fan-out, done/error transition, then best-effort notification. The
// domain is re-normalized and re-guarded here because the record may be
// stale; DNS can change between enqueue and execution.
func (e *Engine) RunScanAndPersist(ctx context.Context, scanID, rawDomain string) (*types.ScanResult, error) {
	log := e.log.WithScanID(scanID).WithTarget(rawDomain)

	if err := e.store.MarkRunning(ctx, scanID); err != nil {
		return nil, fmt.Errorf("failed to mark scan running: %w", err)
	}

	result, err := e.runGuarded(ctx, rawDomain)
	if err != nil {
		log.Warnw("Scan failed", "error", err)
		if markErr := e.store.MarkError(ctx, scanID, err.Error()); markErr != nil {
			log.Errorw("Failed to record scan error", "error", markErr)
		}
		return nil, err
	}

	if err := e.store.MarkDone(ctx, scanID, result); err != nil {
		return nil, fmt.Errorf("failed to persist scan result: %w", err)
	}
	log.Infow("Scan completed",
		"overall_score", result.Score.Overall,
		"label", result.Score.Label,
		"findings", len(result.Findings))

	e.notify(ctx, scanID, result)
	return result, nil
}

func (e *Engine) runGuarded(ctx context.Context, rawDomain string) (*types.ScanResult, error) {
	domain, err := Normalize(rawDomain)
	if err != nil {
		return nil, err
	}
	if _, err := e.guard.AssertPublic(ctx, domain); err != nil {
		return nil, err
	}
	return e.scanner.Scan(ctx, domain)
}

// notify hands the result to the notification collaborator. Notification
// failures are logged and swallowed; the scan itself already succeeded.
func (e *Engine) notify(ctx context.Context, scanID string, result *types.ScanResult) {
	if e.notifier == nil {
		return
	}
	scan, err := e.store.GetScan(ctx, scanID)
	if err != nil || scan == nil {
		e.log.WithScanID(scanID).Warnw("Skipping notification, scan record unavailable", "error", err)
		return
	}
	if err := e.notifier.ScanCompleted(ctx, scan, result); err != nil {
		e.log.WithScanID(scanID).Warnw("Notification failed", "error", err)
	}
}
