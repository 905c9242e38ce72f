// Package history keeps an audit log of settled publish runs in SQLite. It is
// read by the history command and never used to resume a run.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/saga"
	_ "modernc.org/sqlite"
)

// fixed width so finished_at sorts as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one settled run as read back from the log.
type Entry struct {
	RunID         string
	Tag           string
	Repository    string
	Outcome       string
	Error         string
	ManualCleanup bool
	Message       string
	StartedAt     time.Time
	FinishedAt    time.Time
	Actions       []Action
}

// Action is one compensation issued during rollback.
type Action struct {
	Name   string
	Target string
	Error  string
}

func (e Entry) Failed() bool {
	return e.Outcome != string(saga.StepDone)
}

type Store struct {
	conn *sql.DB
}

// Open creates the database file if needed and runs migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	// a single connection keeps :memory: databases shared and writes serialized
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping history: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("history migration failed: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id         TEXT PRIMARY KEY,
			tag            TEXT NOT NULL,
			repository     TEXT NOT NULL,
			outcome        TEXT NOT NULL,
			error          TEXT NOT NULL DEFAULT '',
			manual_cleanup INTEGER NOT NULL DEFAULT 0,
			message        TEXT NOT NULL DEFAULT '',
			started_at     TEXT NOT NULL,
			finished_at    TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS run_actions (
			run_id   TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			action   TEXT NOT NULL,
			target   TEXT NOT NULL,
			error    TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (run_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS runs_finished_at ON runs(finished_at)`,
	}

	for _, m := range migrations {
		if _, err := s.conn.Exec(m); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// Record stores r and its compensations in one transaction. Recording the
// same run twice replaces the earlier row.
func (s *Store) Record(ctx context.Context, r saga.Report) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_actions WHERE run_id = ?`, r.RunID); err != nil {
		return fmt.Errorf("failed to clear actions: %w", err)
	}

	query := `INSERT OR REPLACE INTO runs
		(run_id, tag, repository, outcome, error, manual_cleanup, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query,
		r.RunID, r.Tag, r.Repository, string(r.Outcome), errorText(r.Err),
		boolToInt(r.ManualCleanup), r.Message,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, a := range r.Actions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_actions (run_id, position, action, target, error) VALUES (?, ?, ?, ?, ?)`,
			r.RunID, i, string(a.Action), a.Target, errorText(a.Err),
		); err != nil {
			return fmt.Errorf("failed to insert action: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	logger.Debug(ctx, "run recorded", "run_id", r.RunID, "outcome", r.Outcome)
	return nil
}

// Recent returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT run_id, tag, repository, outcome, error, manual_cleanup, message, started_at, finished_at
		FROM runs ORDER BY finished_at DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var manual int
		var started, finished string
		if err := rows.Scan(&e.RunID, &e.Tag, &e.Repository, &e.Outcome, &e.Error, &manual, &e.Message, &started, &finished); err != nil {
			return nil, err
		}
		e.ManualCleanup = manual == 1
		if e.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("run %s: bad start time: %w", e.RunID, err)
		}
		if e.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("run %s: bad finish time: %w", e.RunID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		actions, err := s.actions(ctx, entries[i].RunID)
		if err != nil {
			return nil, err
		}
		entries[i].Actions = actions
	}
	return entries, nil
}

func (s *Store) actions(ctx context.Context, runID string) ([]Action, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT action, target, error FROM run_actions WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.Name, &a.Target, &a.Error); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
