// Package journal keeps a SQLite ledger of orchestrator runs and per-task
// results. The task document records only done checkboxes; failure detail,
// durations, and skip reasons live here, where `speckit runs` can read
// them after the fact.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run verdicts.
const (
	VerdictRunning   = "running"
	VerdictSucceeded = "succeeded"
	VerdictFailed    = "failed"
	VerdictAborted   = "aborted"
)

// Run is one orchestrator invocation.
type Run struct {
	ID         string
	FeatureDir string
	TasksFile  string
	Executor   string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is live
	Verdict    string
	Completed  int
	Failed     int
	Skipped    int
}

// TaskRecord is one task's outcome within a run.
type TaskRecord struct {
	RunID    string
	TaskID   string
	Phase    string
	Story    string // story label ("US1"), empty outside story phases
	Status   string // "done", "failed", or "skipped"
	Detail   string
	Duration time.Duration
}

// Journal is the run ledger.
type Journal interface {
	BeginRun(ctx context.Context, run *Run) error
	RecordTask(ctx context.Context, rec TaskRecord) error
	FinishRun(ctx context.Context, runID, verdict string, completed, failed, skipped int) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	RunResults(ctx context.Context, runID string) ([]TaskRecord, error)
	Close() error
}

// SQLiteJournal implements Journal on modernc.org/sqlite.
type SQLiteJournal struct {
	db *sql.DB
}

// Open creates or opens the ledger at dbPath, creating parent directories
// as needed. WAL keeps concurrent readers (a `speckit runs` invocation
// during a live run) from blocking the writer.
func Open(ctx context.Context, dbPath string) (*SQLiteJournal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	return open(ctx, connStr)
}

// OpenMemory creates a throwaway in-memory ledger for tests. Each call
// gets its own database.
func OpenMemory(ctx context.Context) (*SQLiteJournal, error) {
	connStr := fmt.Sprintf("file:journal-%s?mode=memory&cache=shared", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	db.SetMaxOpenConns(2)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing journal schema: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		feature_dir TEXT NOT NULL,
		tasks_file TEXT NOT NULL,
		executor TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		verdict TEXT NOT NULL DEFAULT 'running',
		completed INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS task_results (
		run_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		story TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		detail TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_results_run
		ON task_results(run_id, recorded_at);
	`
	_, err := j.db.ExecContext(ctx, schema)
	return err
}

// BeginRun inserts the run row. Missing ID and StartedAt are filled in.
func (j *SQLiteJournal) BeginRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.Verdict = VerdictRunning

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, feature_dir, tasks_file, executor, started_at, verdict)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.FeatureDir, run.TasksFile, run.Executor, run.StartedAt, run.Verdict)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// RecordTask upserts one task outcome. A re-recorded task (a failed write
// retried by a later run step) replaces its earlier row.
func (j *SQLiteJournal) RecordTask(ctx context.Context, rec TaskRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO task_results (run_id, task_id, phase, story, status, detail, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, task_id) DO UPDATE SET
			phase = excluded.phase,
			story = excluded.story,
			status = excluded.status,
			detail = excluded.detail,
			duration_ms = excluded.duration_ms,
			recorded_at = CURRENT_TIMESTAMP
	`, rec.RunID, rec.TaskID, rec.Phase, rec.Story, rec.Status, rec.Detail, rec.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("recording task %s: %w", rec.TaskID, err)
	}
	return nil
}

// FinishRun closes the run row with its verdict and tallies.
func (j *SQLiteJournal) FinishRun(ctx context.Context, runID, verdict string, completed, failed, skipped int) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, verdict = ?, completed = ?, failed = ?, skipped = ?
		WHERE id = ?
	`, time.Now().UTC(), verdict, completed, failed, skipped, runID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finishing run %s: run not found", runID)
	}
	return nil
}

// RecentRuns returns the newest runs first.
func (j *SQLiteJournal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, feature_dir, tasks_file, executor, started_at, finished_at,
		       verdict, completed, failed, skipped
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.FeatureDir, &r.TasksFile, &r.Executor,
			&r.StartedAt, &finished, &r.Verdict, &r.Completed, &r.Failed, &r.Skipped); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunResults returns a run's task outcomes in recording order.
func (j *SQLiteJournal) RunResults(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, task_id, phase, story, status, detail, duration_ms
		FROM task_results
		WHERE run_id = ?
		ORDER BY recorded_at, task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var recs []TaskRecord
	for rows.Next() {
		var rec TaskRecord
		var ms int64
		var detail sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.TaskID, &rec.Phase, &rec.Story,
			&rec.Status, &detail, &ms); err != nil {
			return nil, fmt.Errorf("scanning task result: %w", err)
		}
		rec.Detail = detail.String
		rec.Duration = time.Duration(ms) * time.Millisecond
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
