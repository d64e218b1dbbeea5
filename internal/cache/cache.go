// Package cache stores fetched run history on disk so repeated plot
// generation does not refetch unchanged data.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/wandbplot/pkg/wandb"
)

// Store is a sqlite-backed history cache keyed by run and resolution.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir cache dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS history (
		entity TEXT NOT NULL,
		project TEXT NOT NULL,
		run_id TEXT NOT NULL,
		full_res INTEGER NOT NULL,
		fetched_at INTEGER NOT NULL,
		rows_json TEXT NOT NULL,
		PRIMARY KEY (entity, project, run_id, full_res)
	);`)
	if err != nil {
		return fmt.Errorf("migrate cache: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the cached history rows for a run, or ok=false on a miss or
// when the entry is older than maxAge (maxAge <= 0 disables expiry).
func (s *Store) Get(ctx context.Context, entity, project, runID string, fullRes bool, maxAge time.Duration) ([]wandb.HistoryRow, bool, error) {
	var rowsJSON string
	var fetchedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT rows_json, fetched_at FROM history
		 WHERE entity = ? AND project = ? AND run_id = ? AND full_res = ?`,
		entity, project, runID, boolToInt(fullRes),
	).Scan(&rowsJSON, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query cache: %w", err)
	}
	if maxAge > 0 && time.Since(time.Unix(fetchedAt, 0)) > maxAge {
		return nil, false, nil
	}

	var rows []wandb.HistoryRow
	if err := json.Unmarshal([]byte(rowsJSON), &rows); err != nil {
		// Treat a corrupt entry as a miss; the next Put overwrites it.
		return nil, false, nil
	}
	return rows, true, nil
}

// Put stores the history rows for a run, replacing any previous entry.
func (s *Store) Put(ctx context.Context, entity, project, runID string, fullRes bool, rows []wandb.HistoryRow) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO history (entity, project, run_id, full_res, fetched_at, rows_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entity, project, runID, boolToInt(fullRes), time.Now().Unix(), string(data),
	)
	if err != nil {
		return fmt.Errorf("insert cache: %w", err)
	}
	return nil
}

// Invalidate removes the cached entries for a run at both resolutions.
func (s *Store) Invalidate(ctx context.Context, entity, project, runID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM history WHERE entity = ? AND project = ? AND run_id = ?`,
		entity, project, runID,
	)
	if err != nil {
		return fmt.Errorf("invalidate cache: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
