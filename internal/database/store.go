package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/config"
	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/core"
	"github.com/CodeMonkeyCybersecurity/domainrisk/internal/logger"
	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

type sqlStore struct {
	db  *sqlx.DB
	cfg config.DatabaseConfig
	log *logger.Logger
}

// getPlaceholder returns the appropriate placeholder for the database driver
func (s *sqlStore) getPlaceholder(n int) string {
	if s.cfg.Driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// NewStore connects to the configured database and runs migrations. Both
// postgres and sqlite3 are supported; sqlite3 with a :memory: DSN is what
// the tests use.
func NewStore(cfg config.DatabaseConfig, log *logger.Logger) (core.ScanStore, error) {
	log = log.WithComponent("database")

	start := time.Now()
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &sqlStore{db: db, cfg: cfg, log: log}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Infow("Database store initialized",
		"driver", cfg.Driver,
		"dsn_masked", maskDSN(cfg.DSN),
		"init_duration_ms", time.Since(start).Milliseconds(),
	)
	return store, nil
}

// maskDSN masks credentials in a DSN for logging.
func maskDSN(dsn string) string {
	if len(dsn) > 10 {
		return dsn[:5] + "***" + dsn[len(dsn)-5:]
	}
	return "***"
}

func (s *sqlStore) migrate() error {
	if s.cfg.Driver == "sqlite3" {
		if _, err := s.db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		domain TEXT NOT NULL,
		cache_key TEXT NOT NULL,
		analysis_version TEXT NOT NULL,
		status TEXT NOT NULL,
		result_json TEXT,
		error_message TEXT,
		email_opt_in TEXT,
		created_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_scans_cache_key ON scans(cache_key);
	CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);
	CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

func (s *sqlStore) CreateScan(ctx context.Context, scan *types.Scan) error {
	query := `
		INSERT INTO scans (
			id, domain, cache_key, analysis_version, status,
			result_json, error_message, email_opt_in, created_at, finished_at
		) VALUES (
			:id, :domain, :cache_key, :analysis_version, :status,
			:result_json, :error_message, :email_opt_in, :created_at, :finished_at
		)
	`

	args := map[string]interface{}{
		"id":               scan.ID,
		"domain":           scan.Domain,
		"cache_key":        scan.CacheKey,
		"analysis_version": scan.AnalysisVersion,
		"status":           scan.Status,
		"result_json":      nil,
		"error_message":    scan.ErrorMessage,
		"email_opt_in":     scan.EmailOptIn,
		"created_at":       scan.CreatedAt,
		"finished_at":      scan.FinishedAt,
	}

	start := time.Now()
	if _, err := s.db.NamedExecContext(ctx, query, args); err != nil {
		s.log.LogError(ctx, err, "database.CreateScan", "scan_id", scan.ID)
		return err
	}

	s.log.Debugw("Scan record created",
		"scan_id", scan.ID,
		"cache_key", scan.CacheKey,
		"query_duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// scanRow is the scans table shape; the result blob stays opaque until
// decoded in toScan.
type scanRow struct {
	ID              string         `db:"id"`
	Domain          string         `db:"domain"`
	CacheKey        string         `db:"cache_key"`
	AnalysisVersion string         `db:"analysis_version"`
	Status          string         `db:"status"`
	ResultJSON      sql.NullString `db:"result_json"`
	ErrorMessage    sql.NullString `db:"error_message"`
	EmailOptIn      sql.NullString `db:"email_opt_in"`
	CreatedAt       time.Time      `db:"created_at"`
	FinishedAt      sql.NullTime   `db:"finished_at"`
}

func (r *scanRow) toScan() (*types.Scan, error) {
	scan := &types.Scan{
		ID:              r.ID,
		Domain:          r.Domain,
		CacheKey:        r.CacheKey,
		AnalysisVersion: r.AnalysisVersion,
		Status:          types.ScanStatus(r.Status),
		ErrorMessage:    r.ErrorMessage.String,
		EmailOptIn:      r.EmailOptIn.String,
		CreatedAt:       r.CreatedAt,
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time
		scan.FinishedAt = &t
	}
	if r.ResultJSON.Valid && r.ResultJSON.String != "" {
		var result types.ScanResult
		if err := json.Unmarshal([]byte(r.ResultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result for scan %s: %w", r.ID, err)
		}
		scan.Result = &result
	}
	return scan, nil
}

const scanColumns = `id, domain, cache_key, analysis_version, status,
	result_json, error_message, email_opt_in, created_at, finished_at`

func (s *sqlStore) GetScan(ctx context.Context, scanID string) (*types.Scan, error) {
	query := fmt.Sprintf(`SELECT %s FROM scans WHERE id = %s`, scanColumns, s.getPlaceholder(1))

	var row scanRow
	if err := s.db.GetContext(ctx, &row, query, scanID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("scan not found: %s", scanID)
		}
		return nil, err
	}
	return row.toScan()
}

func (s *sqlStore) MarkRunning(ctx context.Context, scanID string) error {
	query := fmt.Sprintf(
		`UPDATE scans SET status = %s WHERE id = %s AND status = %s`,
		s.getPlaceholder(1), s.getPlaceholder(2), s.getPlaceholder(3),
	)

	result, err := s.db.ExecContext(ctx, query, types.ScanStatusRunning, scanID, types.ScanStatusQueued)
	if err != nil {
		return err
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("scan %s is not queued", scanID)
	}
	return nil
}

func (s *sqlStore) MarkDone(ctx context.Context, scanID string, result *types.ScanResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal scan result: %w", err)
	}

	query := `
		UPDATE scans SET
			status = :status,
			result_json = :result_json,
			finished_at = :finished_at
		WHERE id = :id AND status NOT IN ('done', 'error')
	`

	args := map[string]interface{}{
		"id":          scanID,
		"status":      types.ScanStatusDone,
		"result_json": string(resultJSON),
		"finished_at": time.Now().UTC(),
	}

	res, err := s.db.NamedExecContext(ctx, query, args)
	if err != nil {
		s.log.LogError(ctx, err, "database.MarkDone", "scan_id", scanID)
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("scan %s is already terminal", scanID)
	}
	return nil
}

func (s *sqlStore) MarkError(ctx context.Context, scanID string, message string) error {
	query := `
		UPDATE scans SET
			status = :status,
			error_message = :error_message,
			finished_at = :finished_at
		WHERE id = :id AND status NOT IN ('done', 'error')
	`

	args := map[string]interface{}{
		"id":            scanID,
		"status":        types.ScanStatusError,
		"error_message": message,
		"finished_at":   time.Now().UTC(),
	}

	res, err := s.db.NamedExecContext(ctx, query, args)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return fmt.Errorf("scan %s is already terminal", scanID)
	}
	return nil
}

func (s *sqlStore) FindRecentDoneByCacheKey(ctx context.Context, cacheKey string, since time.Time) (*types.Scan, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM scans
		WHERE cache_key = %s AND status = %s AND created_at >= %s
		ORDER BY created_at DESC
		LIMIT 1
	`, scanColumns, s.getPlaceholder(1), s.getPlaceholder(2), s.getPlaceholder(3))

	var row scanRow
	err := s.db.GetContext(ctx, &row, query, cacheKey, types.ScanStatusDone, since)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	scan, err := row.toScan()
	if err != nil {
		return nil, err
	}
	// A done row without a result blob is unusable as a cache hit.
	if scan.Result == nil {
		return nil, nil
	}
	return scan, nil
}

func (s *sqlStore) FindActiveByCacheKey(ctx context.Context, cacheKey string) (*types.Scan, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM scans
		WHERE cache_key = %s AND status IN ('queued', 'running')
		ORDER BY created_at DESC
		LIMIT 1
	`, scanColumns, s.getPlaceholder(1))

	var row scanRow
	err := s.db.GetContext(ctx, &row, query, cacheKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toScan()
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
