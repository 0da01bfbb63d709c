package worker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/config"
	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/core"
	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/logger"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/scan"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

type worker struct {
	id       string
	hostname string
	queue    core.JobQueue
	store    core.ScanStore
	engine   *scan.Engine
	cfg      config.WorkerConfig
	log      *logger.Logger

	status   types.WorkerStatus
	statusMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker builds one queue consumer. Each worker polls for scan jobs and
// drives them through the lifecycle engine.
func NewWorker(queue core.JobQueue, store core.ScanStore, engine *scan.Engine, cfg config.WorkerConfig, log *logger.Logger) core.Worker {
	workerID := uuid.New().String()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	return &worker{
		id:       workerID,
		hostname: hostname,
		queue:    queue,
		store:    store,
		engine:   engine,
		cfg:      cfg,
		log:      log.WithComponent("worker").WithFields("worker_id", workerID, "hostname", hostname),
		done:     make(chan struct{}),
		status: types.WorkerStatus{
			Status: "idle",
		},
	}
}

func (w *worker) ID() string {
	return w.id
}

func (w *worker) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.updateStatus("active", "")

	w.log.Infow("Worker started")

	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.LogPanic(w.ctx, r, "worker.run")
			}
		}()
		w.run()
	}()

	return nil
}

func (w *worker) Stop() error {
	w.log.Infow("Stopping worker", "scans_done", w.Status().ScansDone)

	if w.cancel != nil {
		w.cancel()
	}

	select {
	case <-w.done:
		w.log.Infow("Worker stopped gracefully")
	case <-time.After(30 * time.Second):
		w.log.Warnw("Worker stop timeout, forcing shutdown")
	}

	w.updateStatus("stopped", "")
	return nil
}

func (w *worker) Status() *types.WorkerStatus {
	w.statusMu.RLock()
	defer w.statusMu.RUnlock()

	status := w.status
	status.ID = w.id
	status.Hostname = w.hostname
	status.LastActivity = time.Now()
	return &status
}

func (w *worker) run() {
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Infow("Worker shutting down")
			return
		default:
			if err := w.processJob(); err != nil {
				w.log.LogError(w.ctx, err, "worker.processJob")
				// Backoff so a broken queue does not spin the loop.
				select {
				case <-time.After(w.cfg.RetryDelay):
				case <-w.ctx.Done():
				}
			}
		}
	}
}

func (w *worker) processJob() error {
	job, err := w.queue.Pop(w.ctx, w.id)
	if err != nil {
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if job == nil {
		select {
		case <-time.After(w.cfg.QueuePollInterval):
		case <-w.ctx.Done():
		}
		return nil
	}

	w.updateStatus("scanning", job.ScanID)
	defer w.updateStatus("idle", "")

	log := w.log.WithScanID(job.ScanID).WithTarget(job.Domain)
	log.Infow("Processing scan job", "job_id", job.ID, "retries", job.Retries)

	// The dispatcher guards against re-running finished scans; a terminal
	// record here means a duplicate delivery, which is just acknowledged.
	if current, err := w.store.GetScan(w.ctx, job.ScanID); err == nil && current.Status.Terminal() {
		log.Debugw("Scan already terminal, acknowledging duplicate job", "status", current.Status)
		return w.queue.Complete(w.ctx, job.ID)
	}

	start := time.Now()
	_, scanErr := w.engine.RunScanAndPersist(w.ctx, job.ScanID, job.Domain)
	if scanErr != nil {
		if job.Retries < w.cfg.MaxRetries {
			if retryErr := w.queue.Retry(w.ctx, job.ID); retryErr != nil {
				log.LogError(w.ctx, retryErr, "worker.queue.retry")
			}
			return nil
		}
		if failErr := w.queue.Fail(w.ctx, job.ID, scanErr.Error()); failErr != nil {
			log.LogError(w.ctx, failErr, "worker.queue.fail")
		}
		log.Warnw("Scan job failed after max retries", "error", scanErr, "max_retries", w.cfg.MaxRetries)
		return nil
	}

	if err := w.queue.Complete(w.ctx, job.ID); err != nil {
		log.LogError(w.ctx, err, "worker.queue.complete")
	}

	w.incrementScansDone()
	log.Infow("Scan job completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *worker) updateStatus(status, currentScan string) {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()

	w.status.Status = status
	w.status.CurrentScan = currentScan
	w.status.LastActivity = time.Now()
}

func (w *worker) incrementScansDone() {
	w.statusMu.Lock()
	defer w.statusMu.Unlock()

	w.status.ScansDone++
}
