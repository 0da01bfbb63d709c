package scan

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/config"
	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/logger"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(config.LoggerConfig{Level: "error", Format: "json"})
	if err != nil {
		t.Fatalf("build logger: %v", err)
	}
	return log
}

// memoryStore is an in-memory ScanStore enforcing the same transition rules
// as the SQL implementation: running requires queued, done and error require
// a non-terminal record.
type memoryStore struct {
	mu    sync.Mutex
	scans map[string]*types.Scan
}

func newMemoryStore() *memoryStore {
	return &memoryStore{scans: make(map[string]*types.Scan)}
}

func (m *memoryStore) CreateScan(ctx context.Context, scan *types.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.scans[scan.ID]; exists {
		return fmt.Errorf("duplicate scan id %s", scan.ID)
	}
	clone := *scan
	m.scans[scan.ID] = &clone
	return nil
}

func (m *memoryStore) GetScan(ctx context.Context, scanID string) (*types.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scan, ok := m.scans[scanID]
	if !ok {
		return nil, fmt.Errorf("scan not found: %s", scanID)
	}
	clone := *scan
	return &clone, nil
}

func (m *memoryStore) MarkRunning(ctx context.Context, scanID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scan, ok := m.scans[scanID]
	if !ok {
		return fmt.Errorf("scan not found: %s", scanID)
	}
	if scan.Status != types.ScanStatusQueued {
		return fmt.Errorf("scan %s is not queued", scanID)
	}
	scan.Status = types.ScanStatusRunning
	return nil
}

func (m *memoryStore) MarkDone(ctx context.Context, scanID string, result *types.ScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scan, ok := m.scans[scanID]
	if !ok {
		return fmt.Errorf("scan not found: %s", scanID)
	}
	if scan.Status.Terminal() {
		return fmt.Errorf("scan %s is already terminal", scanID)
	}
	now := time.Now().UTC()
	scan.Status = types.ScanStatusDone
	scan.Result = result
	scan.FinishedAt = &now
	return nil
}

func (m *memoryStore) MarkError(ctx context.Context, scanID string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scan, ok := m.scans[scanID]
	if !ok {
		return fmt.Errorf("scan not found: %s", scanID)
	}
	if scan.Status.Terminal() {
		return fmt.Errorf("scan %s is already terminal", scanID)
	}
	now := time.Now().UTC()
	scan.Status = types.ScanStatusError
	scan.ErrorMessage = message
	scan.FinishedAt = &now
	return nil
}

func (m *memoryStore) FindRecentDoneByCacheKey(ctx context.Context, cacheKey string, since time.Time) (*types.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *types.Scan
	for _, scan := range m.scans {
		if scan.CacheKey != cacheKey || scan.Status != types.ScanStatusDone || scan.Result == nil {
			continue
		}
		if scan.CreatedAt.Before(since) {
			continue
		}
		if best == nil || scan.CreatedAt.After(best.CreatedAt) {
			best = scan
		}
	}
	if best == nil {
		return nil, nil
	}
	clone := *best
	return &clone, nil
}

func (m *memoryStore) FindActiveByCacheKey(ctx context.Context, cacheKey string) (*types.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, scan := range m.scans {
		if scan.CacheKey != cacheKey {
			continue
		}
		if scan.Status == types.ScanStatusQueued || scan.Status == types.ScanStatusRunning {
			clone := *scan
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memoryStore) Close() error { return nil }

// denyGuard rejects everything, standing in for a target that resolves
// privately.
type denyGuard struct{}

func (denyGuard) AssertPublic(ctx context.Context, host string) ([]netip.Addr, error) {
	return nil, fmt.Errorf("%w: %q", ErrSSRFRejected, host)
}

func newTestEngine(t *testing.T, store *memoryStore, guard Guard) *Engine {
	t.Helper()
	probes := []Probe{
		&stubProbe{
			name:     "dns_auth",
			category: types.CategoryEmailSecurity,
			findings: []types.Finding{
				newFinding(types.Finding{ID: "SPF_MISSING", Category: types.CategoryEmailSecurity, Severity: types.SeverityHigh}),
			},
		},
	}
	scanner := NewScanner(probes, nil, "v1")
	return NewEngine(store, scanner, guard, nil, testLogger(t), 24*time.Hour)
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey("v1", "example.com"); got != "v1:example.com" {
		t.Errorf("cache key: got %q", got)
	}
	if CacheKey("v1", "example.com") == CacheKey("v2", "example.com") {
		t.Error("version bump must change the cache key")
	}
}

func TestEngineCreateQueuedScan(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, allowAllGuard{})

	scan, err := engine.CreateQueuedScan(context.Background(), "HTTPS://Example.COM/path", "ops@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if scan.Domain != "example.com" {
		t.Errorf("domain should be normalized, got %q", scan.Domain)
	}
	if scan.CacheKey != "v1:example.com" {
		t.Errorf("cache key: got %q", scan.CacheKey)
	}
	if scan.Status != types.ScanStatusQueued {
		t.Errorf("status: want queued, got %s", scan.Status)
	}
	if scan.EmailOptIn != "ops@example.com" {
		t.Errorf("email opt-in: got %q", scan.EmailOptIn)
	}

	stored, err := store.GetScan(context.Background(), scan.ID)
	if err != nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if stored.Status != types.ScanStatusQueued {
		t.Errorf("persisted status: got %s", stored.Status)
	}
}

func TestEngineCreateQueuedScanRejectsBadTargets(t *testing.T) {
	store := newMemoryStore()

	engine := newTestEngine(t, store, allowAllGuard{})
	if _, err := engine.CreateQueuedScan(context.Background(), "   ", ""); !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("expected ErrInvalidDomain, got %v", err)
	}

	engine = newTestEngine(t, store, denyGuard{})
	if _, err := engine.CreateQueuedScan(context.Background(), "internal.corp.example.com", ""); !errors.Is(err, ErrSSRFRejected) {
		t.Errorf("expected ErrSSRFRejected, got %v", err)
	}

	if len(store.scans) != 0 {
		t.Errorf("rejected targets must leave no records, found %d", len(store.scans))
	}
}

func TestEngineRunScanAndPersist(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, allowAllGuard{})
	ctx := context.Background()

	scan, err := engine.CreateQueuedScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := engine.RunScanAndPersist(ctx, scan.ID, scan.Domain)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Score.Overall != 85 {
		t.Errorf("overall: want 85, got %d", result.Score.Overall)
	}

	stored, err := store.GetScan(ctx, scan.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != types.ScanStatusDone {
		t.Errorf("status: want done, got %s", stored.Status)
	}
	if stored.Result == nil {
		t.Fatal("result blob must be attached")
	}
	if stored.FinishedAt == nil {
		t.Error("FinishedAt must be set on completion")
	}
}

func TestEngineRunScanMarksErrorOnGuardRejection(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	// Queue through a permissive engine, then run through one whose guard
	// rejects: DNS answers can change between enqueue and execution.
	if _, err := newTestEngine(t, store, allowAllGuard{}).CreateQueuedScan(ctx, "example.com", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	var scanID string
	for id := range store.scans {
		scanID = id
	}

	engine := newTestEngine(t, store, denyGuard{})
	if _, err := engine.RunScanAndPersist(ctx, scanID, "example.com"); !errors.Is(err, ErrSSRFRejected) {
		t.Fatalf("expected ErrSSRFRejected, got %v", err)
	}

	stored, err := store.GetScan(ctx, scanID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != types.ScanStatusError {
		t.Errorf("status: want error, got %s", stored.Status)
	}
	if stored.ErrorMessage == "" {
		t.Error("error message must be recorded")
	}
}

func TestEngineGetOrCreateScanCacheHit(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, allowAllGuard{})
	ctx := context.Background()

	first, created, err := engine.GetOrCreateScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !created {
		t.Fatal("first call must create")
	}
	if _, err := engine.RunScanAndPersist(ctx, first.ID, first.Domain); err != nil {
		t.Fatalf("run: %v", err)
	}

	second, created, err := engine.GetOrCreateScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if created {
		t.Error("second call must hit the cache")
	}
	if second.ID != first.ID {
		t.Errorf("expected cached scan %s, got %s", first.ID, second.ID)
	}
	if second.Result == nil {
		t.Error("cached scan must carry its result")
	}
}

func TestEngineGetOrCreateScanJoinsActive(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, allowAllGuard{})
	ctx := context.Background()

	queued, err := engine.CreateQueuedScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	joined, created, err := engine.GetOrCreateScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}
	if created {
		t.Error("must join the queued scan, not stack a duplicate")
	}
	if joined.ID != queued.ID {
		t.Errorf("expected to join %s, got %s", queued.ID, joined.ID)
	}
}

func TestEngineCacheWindowExpiry(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, allowAllGuard{})
	ctx := context.Background()

	scan, err := engine.CreateQueuedScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.RunScanAndPersist(ctx, scan.ID, scan.Domain); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Move the engine clock past the TTL; the done scan falls out of the
	// cache window and a fresh one is created.
	engine.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	fresh, created, err := engine.GetOrCreateScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}
	if !created {
		t.Fatal("expired cache entry must trigger a new scan")
	}
	if fresh.ID == scan.ID {
		t.Error("new scan must get its own identity")
	}
}

func TestEngineAnalysisVersionInvalidatesCache(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, allowAllGuard{})
	ctx := context.Background()

	scan, err := engine.CreateQueuedScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.RunScanAndPersist(ctx, scan.ID, scan.Domain); err != nil {
		t.Fatalf("run: %v", err)
	}

	bumped := newTestEngine(t, store, allowAllGuard{})
	bumped.scanner.analysisVersion = "v2"

	_, created, err := bumped.GetOrCreateScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("get-or-create: %v", err)
	}
	if !created {
		t.Error("version bump must bypass the old cache entry")
	}
}

type recordingNotifier struct {
	scans []string
	err   error
}

func (n *recordingNotifier) ScanCompleted(ctx context.Context, scan *types.Scan, result *types.ScanResult) error {
	n.scans = append(n.scans, scan.ID)
	return n.err
}

func TestEngineNotifiesOnCompletion(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, allowAllGuard{})
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	engine.notifier = notifier
	ctx := context.Background()

	scan, err := engine.CreateQueuedScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Notification failure must not surface; the scan already succeeded.
	if _, err := engine.RunScanAndPersist(ctx, scan.ID, scan.Domain); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(notifier.scans) != 1 || notifier.scans[0] != scan.ID {
		t.Errorf("notifier should see the completed scan once, got %v", notifier.scans)
	}

	stored, _ := store.GetScan(ctx, scan.ID)
	if stored.Status != types.ScanStatusDone {
		t.Errorf("status: want done, got %s", stored.Status)
	}
}

func TestEngineRunRequiresQueuedScan(t *testing.T) {
	store := newMemoryStore()
	engine := newTestEngine(t, store, allowAllGuard{})
	ctx := context.Background()

	scan, err := engine.CreateQueuedScan(ctx, "example.com", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.RunScanAndPersist(ctx, scan.ID, scan.Domain); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A second delivery of the same job must bounce off the state machine.
	if _, err := engine.RunScanAndPersist(ctx, scan.ID, scan.Domain); err == nil {
		t.Fatal("re-running a done scan must fail the running transition")
	}
}
