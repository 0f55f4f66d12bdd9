// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists the thread registry and run ledger with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == MemoryPath {
		// every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			deleted_at TEXT
		);

		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error_code TEXT,
			prompt_tokens INTEGER NOT NULL DEFAULT 0,
			completion_tokens INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_thread_created
			ON runs(thread_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// RecordThread inserts a thread unless it is already registered.
func (s *SQLiteStore) RecordThread(ctx context.Context, thread *Thread) error {
	query := `
		INSERT INTO threads (id, agent_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		thread.ID,
		thread.AgentID,
		thread.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting thread: %w", err)
	}

	s.logger.Debug("recorded thread", "thread_id", thread.ID, "agent_id", thread.AgentID)
	return nil
}

// MarkThreadDeleted sets deleted_at, inserting the thread if needed.
func (s *SQLiteStore) MarkThreadDeleted(ctx context.Context, id string, at time.Time) error {
	query := `
		INSERT INTO threads (id, agent_id, created_at, deleted_at)
		VALUES (?, '', ?, ?)
		ON CONFLICT(id) DO UPDATE SET deleted_at = excluded.deleted_at
	`

	stamp := at.UTC().Format(time.RFC3339)
	if _, err := s.db.ExecContext(ctx, query, id, stamp, stamp); err != nil {
		return fmt.Errorf("marking thread deleted: %w", err)
	}

	s.logger.Debug("marked thread deleted", "thread_id", id)
	return nil
}

// GetThread retrieves a thread by ID.
// Returns ErrNotFound if the thread doesn't exist.
func (s *SQLiteStore) GetThread(ctx context.Context, id string) (*Thread, error) {
	query := `
		SELECT id, agent_id, created_at, deleted_at
		FROM threads
		WHERE id = ?
	`

	var thread Thread
	var createdAtStr string
	var deletedAtStr sql.NullString

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&thread.ID,
		&thread.AgentID,
		&createdAtStr,
		&deletedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}

	thread.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if deletedAtStr.Valid {
		deletedAt, err := time.Parse(time.RFC3339, deletedAtStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing deleted_at: %w", err)
		}
		thread.DeletedAt = &deletedAt
	}

	return &thread, nil
}

// RecordRun appends a run to the ledger.
// Returns ErrDuplicateRun if the run ID is already recorded.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *Run) error {
	query := `
		INSERT INTO runs (
			id, thread_id, agent_id, status, error_code,
			prompt_tokens, completion_tokens, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.ThreadID,
		run.AgentID,
		run.Status,
		nullString(run.ErrorCode),
		run.PromptTokens,
		run.CompletionTokens,
		run.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateRun
		}
		return fmt.Errorf("inserting run: %w", err)
	}

	s.logger.Debug("recorded run", "run_id", run.ID, "thread_id", run.ThreadID, "status", run.Status)
	return nil
}

// ListRunsByThread returns the runs of a thread in chronological order.
// If limit is 0 or negative, all runs are returned.
func (s *SQLiteStore) ListRunsByThread(ctx context.Context, threadID string, limit int) ([]*Run, error) {
	query := `
		SELECT id, thread_id, agent_id, status, error_code,
			prompt_tokens, completion_tokens, created_at
		FROM runs
		WHERE thread_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	args := []any{threadID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var errorCode sql.NullString
		var createdAtStr string

		if err := rows.Scan(
			&run.ID,
			&run.ThreadID,
			&run.AgentID,
			&run.Status,
			&errorCode,
			&run.PromptTokens,
			&run.CompletionTokens,
			&createdAtStr,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		run.ErrorCode = errorCode.String
		run.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		runs = append(runs, &run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// isConstraintViolation checks if an error is a SQLite constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString maps "" to SQL NULL.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
