package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/amishk599/recsmoke/internal/model"
	_ "modernc.org/sqlite"
)

// Ensure SQLiteStore implements model.RunStore.
var _ model.RunStore = (*SQLiteStore)(nil)

// SQLiteStore keeps smoke run history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// runs table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	createTable := `CREATE TABLE IF NOT EXISTS runs (
		run_id      TEXT PRIMARY KEY,
		job_id      TEXT NOT NULL DEFAULT '',
		flow_name   TEXT NOT NULL DEFAULT '',
		target_url  TEXT NOT NULL DEFAULT '',
		outcome     TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT '',
		session_id  TEXT NOT NULL DEFAULT '',
		attempts    INTEGER NOT NULL DEFAULT 0,
		started_at  DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT ''
	)`
	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveRun records a finished run. Saving the same run ID twice replaces it.
func (s *SQLiteStore) SaveRun(run model.Run) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO runs
			(run_id, job_id, flow_name, target_url, outcome, status, session_id, attempts, started_at, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.JobID, run.FlowName, run.TargetURL, string(run.Outcome), run.Status,
		run.SessionID, run.Attempts, run.StartedAt.UTC(), run.Duration.Milliseconds(), run.Error,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.ID, err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *SQLiteStore) RecentRuns(limit int) ([]model.Run, error) {
	rows, err := s.db.Query(
		`SELECT run_id, job_id, flow_name, target_url, outcome, status, session_id, attempts, started_at, duration_ms, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			r          model.Run
			outcome    string
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &r.JobID, &r.FlowName, &r.TargetURL, &outcome, &r.Status,
			&r.SessionID, &r.Attempts, &r.StartedAt, &durationMS, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Outcome = model.Outcome(outcome)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing recent runs: %w", err)
	}
	return runs, nil
}

// Cleanup deletes runs that started longer ago than olderThan.
func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan).UTC()
	_, err := s.db.Exec("DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("cleaning up runs older than %v: %w", olderThan, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
