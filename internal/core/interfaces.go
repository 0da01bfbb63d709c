package core

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

// ScanStore persists scan lifecycle records and their result blobs. The
// engine treats it as a key-value record store with point lookups; no
// transactions or joins are required of an implementation.
type ScanStore interface {
	CreateScan(ctx context.Context, scan *types.Scan) error
	GetScan(ctx context.Context, scanID string) (*types.Scan, error)

	// MarkRunning transitions a queued scan to running.
	MarkRunning(ctx context.Context, scanID string) error
	// MarkDone transitions a scan to done and attaches the immutable result.
	MarkDone(ctx context.Context, scanID string, result *types.ScanResult) error
	// MarkError transitions a scan to error with a caller-visible message.
	MarkError(ctx context.Context, scanID string, message string) error

	// FindRecentDoneByCacheKey returns the most recent done scan with a
	// non-nil result created at or after since, or nil when none exists.
	FindRecentDoneByCacheKey(ctx context.Context, cacheKey string, since time.Time) (*types.Scan, error)
	// FindActiveByCacheKey returns a queued or running scan for the cache
	// key, or nil. Advisory only: two concurrent scans of the same domain
	// are tolerated and must not corrupt state.
	FindActiveByCacheKey(ctx context.Context, cacheKey string) (*types.Scan, error)

	Close() error
}

// JobQueue dispatches scan work to workers. At-least-once delivery is
// acceptable; re-running a done scan is the dispatcher's job to avoid.
type JobQueue interface {
	Push(ctx context.Context, job *types.Job) error
	Pop(ctx context.Context, workerID string) (*types.Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, reason string) error
	Retry(ctx context.Context, jobID string) error
	Close() error
}

// Notifier consumes completed scan results (report mail, webhooks).
// Implementations are external collaborators; errors are logged, never
// allowed to fail the scan that produced the result.
type Notifier interface {
	ScanCompleted(ctx context.Context, scan *types.Scan, result *types.ScanResult) error
}

type Worker interface {
	ID() string
	Start(ctx context.Context) error
	Stop() error
	Status() *types.WorkerStatus
}

type WorkerPool interface {
	Start(ctx context.Context, workers int) error
	Stop() error
	Status() []*types.WorkerStatus
}
