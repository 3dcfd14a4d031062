// Package usage records one row per finished compression for statistics.
//
// DESIGN: A single SQLite file (modernc.org/sqlite, no cgo) with one table.
// Rows older than the retention window are pruned periodically. Recording
// is best effort: the gateway logs a failed insert and still answers the
// request.
package usage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DefaultRetention is how long records are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Config contains usage statistics settings.
type Config struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`      // SQLite database file
	Retention time.Duration `yaml:"retention"` // Records older than this are pruned
}

// Record is one finished compression.
type Record struct {
	ID                 int64     `json:"id"`
	CreatedAt          time.Time `json:"created_at"`
	RequestID          string    `json:"request_id"`
	RunID              string    `json:"run_id"`
	OriginalFilename   string    `json:"original_filename"`
	CompressedFilename string    `json:"compressed_filename"`
	OriginalSize       int64     `json:"original_size"`
	CompressedSize     int64     `json:"compressed_size"`
	RatioPercent       float64   `json:"compression_ratio"`
	TargetKB           int       `json:"target_kb"`
	Backend            string    `json:"backend"`
	Fallback           bool      `json:"fallback"`
	Passes             int       `json:"passes"`
	Converged          bool      `json:"converged"`
	ClientIP           string    `json:"client_ip"`
}

// Summary aggregates records over a period.
type Summary struct {
	Since           time.Time        `json:"since"`
	Compressions    int64            `json:"compressions"`
	OriginalBytes   int64            `json:"original_bytes"`
	CompressedBytes int64            `json:"compressed_bytes"`
	AverageRatio    float64          `json:"average_ratio"`
	Converged       int64            `json:"converged"`
	Fallbacks       int64            `json:"fallbacks"`
	ByBackend       map[string]int64 `json:"by_backend"`
}

// Recorder writes and queries usage records. Safe for concurrent use.
type Recorder struct {
	db        *sql.DB
	retention time.Duration
	now       func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS compressions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  created_at INTEGER NOT NULL,
  request_id TEXT NOT NULL DEFAULT '',
  run_id TEXT NOT NULL DEFAULT '',
  original_filename TEXT NOT NULL DEFAULT '',
  compressed_filename TEXT NOT NULL DEFAULT '',
  original_size INTEGER NOT NULL,
  compressed_size INTEGER NOT NULL,
  ratio REAL NOT NULL,
  target_kb INTEGER NOT NULL,
  backend TEXT NOT NULL,
  fallback INTEGER NOT NULL DEFAULT 0,
  passes INTEGER NOT NULL,
  converged INTEGER NOT NULL DEFAULT 0,
  client_ip TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS compressions_created_at ON compressions (created_at);
`

// Open opens (and creates) the database at path.
func Open(path string, retention time.Duration) (*Recorder, error) {
	if path == "" {
		return nil, errors.New("usage database path is required")
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create usage directory: %w", err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open usage database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create usage schema: %w", err)
	}
	return &Recorder{db: db, retention: retention, now: time.Now}, nil
}

// Close closes the database.
func (r *Recorder) Close() error {
	return r.db.Close()
}

// Record inserts one record. A zero CreatedAt means now.
func (r *Recorder) Record(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	res, err := r.db.ExecContext(ctx, `
INSERT INTO compressions (created_at, request_id, run_id, original_filename, compressed_filename,
  original_size, compressed_size, ratio, target_kb, backend, fallback, passes, converged, client_ip)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CreatedAt.UnixMilli(), rec.RequestID, rec.RunID, rec.OriginalFilename, rec.CompressedFilename,
		rec.OriginalSize, rec.CompressedSize, rec.RatioPercent, rec.TargetKB, rec.Backend,
		rec.Fallback, rec.Passes, rec.Converged, rec.ClientIP)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// Recent returns up to limit records, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, created_at, request_id, run_id, original_filename, compressed_filename,
  original_size, compressed_size, ratio, target_kb, backend, fallback, passes, converged, client_ip
FROM compressions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var created int64
		if err := rows.Scan(&rec.ID, &created, &rec.RequestID, &rec.RunID, &rec.OriginalFilename,
			&rec.CompressedFilename, &rec.OriginalSize, &rec.CompressedSize, &rec.RatioPercent,
			&rec.TargetKB, &rec.Backend, &rec.Fallback, &rec.Passes, &rec.Converged, &rec.ClientIP); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		rec.CreatedAt = time.UnixMilli(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summarize aggregates every record created at or after since.
func (r *Recorder) Summarize(ctx context.Context, since time.Time) (*Summary, error) {
	s := &Summary{Since: since, ByBackend: map[string]int64{}}

	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(original_size), 0), COALESCE(SUM(compressed_size), 0),
  COALESCE(AVG(ratio), 0), COALESCE(SUM(converged), 0), COALESCE(SUM(fallback), 0)
FROM compressions WHERE created_at >= ?`, since.UnixMilli()).
		Scan(&s.Compressions, &s.OriginalBytes, &s.CompressedBytes, &s.AverageRatio, &s.Converged, &s.Fallbacks)
	if err != nil {
		return nil, fmt.Errorf("summarize usage: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT backend, COUNT(*) FROM compressions WHERE created_at >= ? GROUP BY backend`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("summarize usage by backend: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var backend string
		var n int64
		if err := rows.Scan(&backend, &n); err != nil {
			return nil, err
		}
		s.ByBackend[backend] = n
	}
	return s, rows.Err()
}

// Prune deletes records older than the retention window.
func (r *Recorder) Prune(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-r.retention)
	res, err := r.db.ExecContext(ctx, `DELETE FROM compressions WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune usage records: %w", err)
	}
	return res.RowsAffected()
}

// RunPruner prunes on every tick until ctx is done.
func (r *Recorder) RunPruner(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.Prune(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("usage prune failed")
				continue
			}
			if n > 0 {
				log.Info().Int64("deleted", n).Msg("pruned usage records")
			}
		}
	}
}
