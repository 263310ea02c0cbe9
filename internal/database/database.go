package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-converter/internal/logging"
	"media-converter/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

const (
	// DefaultRecentLimit is used when Recent is called with a non-positive limit.
	DefaultRecentLimit = 50
	// MaxRecentLimit caps a single Recent query.
	MaxRecentLimit = 500
)

// Database stores the conversion history.
type Database struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	now    func() time.Time
}

// New creates a new Database instance.
// IMPORTANT: dbPath should be the full path to the database FILE (e.g., "/data/history.db"),
// and the parent directory must already exist and be writable.
// Use startup.LoadConfig() to ensure proper directory validation before calling this.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("History database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// busy_timeout helps prevent "database is locked" errors
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	if n, err := d.Count(ctx); err == nil {
		metrics.HistoryRows.Set(float64(n))
	}

	logging.Info("History database initialized successfully at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("initialize_schema", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	schema := `
	CREATE TABLE IF NOT EXISTS conversions (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		operation TEXT NOT NULL,
		input_ext TEXT NOT NULL,
		output_ext TEXT NOT NULL,
		input_category TEXT NOT NULL DEFAULT '',
		output_category TEXT NOT NULL DEFAULT '',
		input_bytes INTEGER NOT NULL DEFAULT 0,
		output_bytes INTEGER NOT NULL DEFAULT 0,
		duration_ms REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_kind TEXT NOT NULL DEFAULT '',
		cached INTEGER NOT NULL DEFAULT 0,
		backend TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_conversions_created ON conversions(created_at);
	CREATE INDEX IF NOT EXISTS idx_conversions_output ON conversions(output_ext);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err = d.db.ExecContext(ctx, schema)
	return err
}

// Record inserts a conversion. Missing ids and timestamps are filled in and
// written back to c.
func (d *Database) Record(ctx context.Context, c *Conversion) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record", start, err) }()

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = d.now()
	}
	if c.Status == "" {
		c.Status = StatusSuccess
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO conversions (id, created_at, operation, input_ext, output_ext, input_category,
		output_category, input_bytes, output_bytes, duration_ms, status, error_kind, cached, backend)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID,
		c.CreatedAt.UnixMilli(),
		c.Operation,
		c.InputExt,
		c.OutputExt,
		c.InputCategory,
		c.OutputCategory,
		c.InputBytes,
		c.OutputBytes,
		c.Duration,
		string(c.Status),
		c.ErrorKind,
		c.Cached,
		c.Backend,
	)
	if err == nil {
		metrics.HistoryRows.Inc()
	}
	return err
}

// Recent returns the newest conversions first.
func (d *Database) Recent(ctx context.Context, limit int) ([]Conversion, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("recent", start, err) }()

	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
	SELECT id, created_at, operation, input_ext, output_ext, input_category, output_category,
		input_bytes, output_bytes, duration_ms, status, error_kind, cached, backend
	FROM conversions
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Conversion, 0, limit)
	for rows.Next() {
		var c Conversion
		var created int64
		var status string
		if err = rows.Scan(
			&c.ID, &created, &c.Operation, &c.InputExt, &c.OutputExt,
			&c.InputCategory, &c.OutputCategory, &c.InputBytes, &c.OutputBytes,
			&c.Duration, &status, &c.ErrorKind, &c.Cached, &c.Backend,
		); err != nil {
			return nil, err
		}
		c.CreatedAt = time.UnixMilli(created)
		c.Status = Status(status)
		items = append(items, c)
	}
	err = rows.Err()
	return items, err
}

// Count returns the number of stored conversions.
func (d *Database) Count(ctx context.Context) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int64
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversions").Scan(&n)
	return n, err
}

// Stats aggregates the stored history.
func (d *Database) Stats(ctx context.Context) (HistoryStats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := HistoryStats{ByOutput: make(map[string]int64)}
	var oldest sql.NullInt64
	err = d.db.QueryRowContext(ctx, `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(cached), 0),
		COALESCE(SUM(input_bytes), 0),
		COALESCE(SUM(output_bytes), 0),
		MIN(created_at)
	FROM conversions
	`).Scan(&stats.Total, &stats.Succeeded, &stats.Failed, &stats.Cached,
		&stats.InputBytes, &stats.OutputBytes, &oldest)
	if err != nil {
		return stats, err
	}
	if oldest.Valid {
		stats.Oldest = time.UnixMilli(oldest.Int64)
	}

	rows, err := d.db.QueryContext(ctx, `
	SELECT output_ext, COUNT(*) FROM conversions
	WHERE status = 'success'
	GROUP BY output_ext
	`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var ext string
		var n int64
		if err = rows.Scan(&ext, &n); err != nil {
			return stats, err
		}
		stats.ByOutput[ext] = n
	}
	err = rows.Err()
	return stats, err
}

// CleanupOlderThan deletes conversions older than retention and returns how
// many rows were removed.
func (d *Database) CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("cleanup", start, err) }()

	if retention <= 0 {
		return 0, errors.New("retention must be positive")
	}
	now := d.now()
	cutoff := now.Add(-retention)

	d.mu.Lock()
	execCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	result, err := d.db.ExecContext(execCtx, "DELETE FROM conversions WHERE created_at < ?", cutoff.UnixMilli())
	cancel()
	d.mu.Unlock()
	if err != nil {
		return 0, err
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		metrics.HistoryRows.Sub(float64(removed))
		logging.Info("Removed %d history rows older than %s", removed, retention)
	}
	if setErr := d.SetLastCleanup(ctx, now); setErr != nil {
		logging.Warn("failed to store last cleanup time: %v", setErr)
	}
	return removed, nil
}

// StartCleanup runs CleanupOlderThan every interval until stop is closed.
func (d *Database) StartCleanup(retention, interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := d.CleanupOlderThan(context.Background(), retention); err != nil {
					logging.Error("history cleanup failed: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// Vacuum optimizes the database.
func (d *Database) Vacuum() error {
	start := time.Now()
	var err error
	defer func() { recordQuery("vacuum", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	_, err = d.db.ExecContext(ctx, "VACUUM")
	return err
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.HistoryQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.HistoryQueryDuration.WithLabelValues(operation).Observe(duration)
}

// diagnoseDatabasePermissions checks database directory and file permissions
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}

	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	logging.Debug("Database directory is writable")

	if dbInfo, err := os.Stat(dbPath); err == nil {
		logging.Debug("Database file exists: %s (mode: %v, size: %d bytes)", dbPath, dbInfo.Mode(), dbInfo.Size())
		if dbInfo.Mode().Perm()&0o200 == 0 {
			logging.Warn("Database file is read-only! Mode: %v", dbInfo.Mode())
		}
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		path := dbPath + suffix
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("%s file exists: %s (mode: %v, size: %d bytes)", suffix[1:], path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 == 0 {
			logging.Warn("%s file is read-only! Mode: %v - this will cause write failures", suffix[1:], info.Mode())
			if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
				logging.Error("Failed to fix %s file permissions: %v", suffix[1:], chmodErr)
			} else {
				logging.Info("Fixed %s file permissions", suffix[1:])
			}
		}
	}

	return nil
}
