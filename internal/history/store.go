package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vidmill/internal/config"
	"vidmill/internal/orchestrator"
	"vidmill/internal/task"
)

// Store persists batch outcomes, backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS batches (
	batch_id     TEXT PRIMARY KEY,
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL,
	total        INTEGER NOT NULL,
	finished     INTEGER NOT NULL,
	failed       INTEGER NOT NULL,
	success_rate REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS batch_tasks (
	batch_id      TEXT NOT NULL REFERENCES batches(batch_id) ON DELETE CASCADE,
	task_id       TEXT NOT NULL,
	content       TEXT NOT NULL,
	title         TEXT NOT NULL,
	status        TEXT NOT NULL,
	execute_id    TEXT NOT NULL DEFAULT '',
	output_path   TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	retry_count   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (batch_id, task_id)
);
CREATE INDEX IF NOT EXISTS idx_batches_started ON batches(started_at DESC);
`

// Open initializes or connects to the history database under the log dir.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "history.db"))
}

// OpenPath opens the history database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if err := s.execWithRetry(ctx, schema); err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// BatchSummary is one archived batch row.
type BatchSummary struct {
	BatchID     string
	StartedAt   time.Time
	FinishedAt  time.Time
	Total       int
	Finished    int
	Failed      int
	SuccessRate float64
}

// TaskRow is one archived task outcome.
type TaskRow struct {
	TaskID       string
	Content      string
	Title        string
	Status       string
	ExecuteID    string
	OutputPath   string
	ErrorMessage string
	RetryCount   int
}

// RecordBatch archives one finished batch with its per-task outcomes.
func (s *Store) RecordBatch(ctx context.Context, batchID string, stats orchestrator.Stats, tasks []*task.Task) error {
	ctx = ensureContext(ctx)
	finishedAt := time.Now().UTC()
	if stats.FinishedAt != nil {
		finishedAt = *stats.FinishedAt
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin history tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO batches
			 (batch_id, started_at, finished_at, total, finished, failed, success_rate)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			batchID,
			stats.StartedAt.UTC().Format(time.RFC3339Nano),
			finishedAt.Format(time.RFC3339Nano),
			stats.Total, stats.Finished, stats.Failed, stats.SuccessRate,
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}

		for _, t := range tasks {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO batch_tasks
				 (batch_id, task_id, content, title, status, execute_id, output_path, error_message, retry_count)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				batchID, t.ID, t.Content, t.Title, string(t.Status),
				t.ExecuteID, t.OutputPath, t.ErrorMessage, t.RetryCount,
			); err != nil {
				return fmt.Errorf("insert batch task %s: %w", t.ID, err)
			}
		}
		return tx.Commit()
	})
}

// ListBatches returns the most recent batches, newest first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]BatchSummary, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT batch_id, started_at, finished_at, total, finished, failed, success_rate
		 FROM batches ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var batches []BatchSummary
	for rows.Next() {
		summary, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, summary)
	}
	return batches, rows.Err()
}

// GetBatch returns one batch and its task outcomes.
func (s *Store) GetBatch(ctx context.Context, batchID string) (BatchSummary, []TaskRow, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, started_at, finished_at, total, finished, failed, success_rate
		 FROM batches WHERE batch_id = ?`, batchID)
	summary, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BatchSummary{}, nil, fmt.Errorf("batch %s not found", batchID)
		}
		return BatchSummary{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, content, title, status, execute_id, output_path, error_message, retry_count
		 FROM batch_tasks WHERE batch_id = ? ORDER BY task_id`, batchID)
	if err != nil {
		return BatchSummary{}, nil, fmt.Errorf("list batch tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TaskRow
	for rows.Next() {
		var t TaskRow
		if err := rows.Scan(&t.TaskID, &t.Content, &t.Title, &t.Status,
			&t.ExecuteID, &t.OutputPath, &t.ErrorMessage, &t.RetryCount); err != nil {
			return BatchSummary{}, nil, fmt.Errorf("scan batch task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return summary, tasks, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (BatchSummary, error) {
	var summary BatchSummary
	var startedAt, finishedAt string
	if err := row.Scan(&summary.BatchID, &startedAt, &finishedAt,
		&summary.Total, &summary.Finished, &summary.Failed, &summary.SuccessRate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BatchSummary{}, err
		}
		return BatchSummary{}, fmt.Errorf("scan batch: %w", err)
	}
	var err error
	if summary.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return BatchSummary{}, fmt.Errorf("parse started_at: %w", err)
	}
	if summary.FinishedAt, err = time.Parse(time.RFC3339Nano, finishedAt); err != nil {
		return BatchSummary{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return summary, nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
