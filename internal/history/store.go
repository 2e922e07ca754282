// Package history persists finished automation tasks to SQLite so the
// bridge can answer "what ran and what failed" across restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/dongwu-tools/tradebridge/internal/queue"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_history (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	state       TEXT NOT NULL,
	error_code  TEXT NOT NULL DEFAULT '',
	detail      TEXT NOT NULL DEFAULT '',
	enqueued_at TIMESTAMP NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_history_finished ON task_history(finished_at DESC);
`

// Store records task outcomes. It implements queue.Listener.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// New opens (or creates) the history database under dir.
func New(dir string, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dir, "bridge.db")

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// Single writer; the queue worker is the only goroutine inserting.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	return &Store{
		db:  db,
		log: log.With().Str("component", "history").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// TaskFinished inserts the record. Failures are logged, never propagated;
// history must not break automation.
func (s *Store) TaskFinished(rec queue.TaskRecord) {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO task_history
			(id, kind, state, error_code, detail, enqueued_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), string(rec.State), rec.ErrorCode, rec.Detail,
		rec.EnqueuedAt.UTC(), rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", rec.ID).Msg("Failed to persist task record")
	}
}

// Recent returns the most recently finished tasks, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]queue.TaskRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, state, error_code, detail, enqueued_at, started_at, finished_at
		FROM task_history
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query task history: %w", err)
	}
	defer rows.Close()

	var records []queue.TaskRecord
	for rows.Next() {
		var rec queue.TaskRecord
		var kind, state string
		if err := rows.Scan(&rec.ID, &kind, &state, &rec.ErrorCode, &rec.Detail,
			&rec.EnqueuedAt, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task record: %w", err)
		}
		rec.Kind = queue.TaskKind(kind)
		rec.State = queue.TaskState(state)
		records = append(records, rec)
	}
	return records, rows.Err()
}
