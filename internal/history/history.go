// Package history records one row per encode or decode run to a SQLite
// database, for operators who want to ask "what files has this machine
// seen" without parsing log files.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

var ErrRunNotFound = errors.New("history: run not found")

// Kind distinguishes an encode run from a decode run.
type Kind string

const (
	KindEncode Kind = "encode"
	KindDecode Kind = "decode"
)

// Outcome is the terminal result of a run.
type Outcome string

const (
	OutcomeDone      Outcome = "done"
	OutcomePartial   Outcome = "partial"
	OutcomePoisoned  Outcome = "poisoned"
	OutcomeInterrupted Outcome = "interrupted"
)

// Run is one row of run history. RunID correlates every file handled by a
// single CLI invocation (see internal/dispatch.Driver.RunID) without being
// part of the wire format.
type Run struct {
	ID          int64
	RunID       string
	FileID      string
	FileName    string
	Kind        Kind
	Outcome     Outcome
	FileSize    int64
	ChunksCount int64
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Store wraps a SQLite-backed run-history log.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open creates or opens the history database at path and ensures its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL DEFAULT '',
			file_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			outcome TEXT NOT NULL,
			file_size INTEGER NOT NULL,
			chunks_count INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_file_id ON runs(file_id);
		CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("history: init schema: %w", err)
	}
	return nil
}

// Record inserts one run row and returns its assigned id.
func (s *Store) Record(r Run) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO runs (run_id, file_id, file_name, kind, outcome, file_size, chunks_count, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.FileID, r.FileName, string(r.Kind), string(r.Outcome), r.FileSize, r.ChunksCount, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("history: insert run: %w", err)
	}
	return res.LastInsertId()
}

// ByFileID returns every run recorded for a given file_id, most recent first.
func (s *Store) ByFileID(fileID string) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, run_id, file_id, file_name, kind, outcome, file_size, chunks_count, started_at, finished_at
		 FROM runs WHERE file_id = ? ORDER BY started_at DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("history: query by file_id: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// Recent returns the most recent n runs across all files.
func (s *Store) Recent(n int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, run_id, file_id, file_name, kind, outcome, file_size, chunks_count, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var out []Run
	for rows.Next() {
		var r Run
		var kind, outcome string
		if err := rows.Scan(&r.ID, &r.RunID, &r.FileID, &r.FileName, &kind, &outcome, &r.FileSize, &r.ChunksCount, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.Kind = Kind(kind)
		r.Outcome = Outcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping is a cheap liveness probe for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
