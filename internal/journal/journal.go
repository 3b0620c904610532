// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package journal records runs and their progress events in a SQLite
// database so past batches can be reviewed with `bibfetch history`.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/bibfetch/internal/queue"
	"github.com/pdiddy/bibfetch/pkg/types"
)

// Run is one row of the run history.
type Run struct {
	ID        string    `json:"id" yaml:"id"`
	Started   time.Time `json:"started" yaml:"started"`
	Finished  time.Time `json:"finished,omitempty" yaml:"finished,omitempty"`
	Total     int       `json:"total" yaml:"total"`
	Completed int       `json:"completed" yaml:"completed"`
	Failed    int       `json:"failed" yaml:"failed"`
	Skipped   int       `json:"skipped" yaml:"skipped"`
}

// Journal is a queue observer that persists every event of the current run.
type Journal struct {
	db *sql.DB

	mu    sync.Mutex
	runID string
	err   error
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	j := &Journal{db: db}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return j, nil
}

// Close releases the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started TEXT NOT NULL,
			finished TEXT,
			total INTEGER NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id),
			citation_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			label TEXT,
			from_status TEXT,
			to_status TEXT,
			strategy TEXT,
			outcome TEXT,
			detail TEXT,
			at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id)`,
	}
	for _, stmt := range statements {
		if _, err := j.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// StartRun opens a new run; subsequent events are recorded under it.
func (j *Journal) StartRun(started time.Time, total int) (string, error) {
	id := uuid.NewString()
	if _, err := j.db.Exec(
		`INSERT INTO runs (id, started, total) VALUES (?, ?, ?)`,
		id, formatTime(started), total,
	); err != nil {
		return "", fmt.Errorf("starting run: %w", err)
	}
	j.mu.Lock()
	j.runID, j.err = id, nil
	j.mu.Unlock()
	return id, nil
}

// OnEvent records ev under the current run. Write errors are kept and
// returned by FinishRun.
func (j *Journal) OnEvent(ev types.ProgressEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.runID == "" || j.err != nil {
		return
	}
	var strategy, outcome string
	if ev.Attempt != nil {
		strategy, outcome = ev.Attempt.Strategy, string(ev.Attempt.Outcome)
	}
	_, err := j.db.Exec(
		`INSERT INTO events (run_id, citation_id, idx, label, from_status, to_status, strategy, outcome, detail, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, ev.CitationID, ev.Index, ev.Label, string(ev.From), string(ev.To),
		strategy, outcome, ev.Detail, formatTime(ev.At),
	)
	if err != nil {
		j.err = fmt.Errorf("recording event: %w", err)
	}
}

// FinishRun stores the run's counts and closes it.
func (j *Journal) FinishRun(sum queue.Summary) error {
	j.mu.Lock()
	id, werr := j.runID, j.err
	j.runID = ""
	j.mu.Unlock()
	if id == "" {
		return fmt.Errorf("no run in progress")
	}
	if _, err := j.db.Exec(
		`UPDATE runs SET finished = ?, completed = ?, failed = ?, skipped = ? WHERE id = ?`,
		formatTime(sum.Finished), sum.Completed, sum.Failed, sum.Skipped, id,
	); err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return werr
}

// History returns up to limit runs, newest first. A limit of zero or less
// returns every run.
func (j *Journal) History(limit int) ([]Run, error) {
	query := `SELECT id, started, COALESCE(finished, ''), total, completed, failed, skipped
		FROM runs ORDER BY started DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Total, &r.Completed, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.Started = parseTime(started)
		r.Finished = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Events returns the events of runID in the order they were recorded.
func (j *Journal) Events(runID string) ([]types.ProgressEvent, error) {
	rows, err := j.db.Query(
		`SELECT citation_id, idx, label, from_status, to_status, strategy, outcome, detail, at
		 FROM events WHERE run_id = ? ORDER BY rowid`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []types.ProgressEvent
	for rows.Next() {
		var ev types.ProgressEvent
		var from, to, strategy, outcome, at string
		if err := rows.Scan(&ev.CitationID, &ev.Index, &ev.Label, &from, &to, &strategy, &outcome, &ev.Detail, &at); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		ev.From, ev.To = types.Status(from), types.Status(to)
		ev.At = parseTime(at)
		if outcome != "" {
			ev.Attempt = &types.AttemptResult{Strategy: strategy, Outcome: types.Outcome(outcome), At: ev.At, Detail: ev.Detail}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
