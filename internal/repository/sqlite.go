package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/mcpeeps/coordinator/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS contexts (
			context_id TEXT PRIMARY KEY,
			messages TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			task_id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			agent_name TEXT NOT NULL,
			status TEXT NOT NULL,
			record TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_context ON tasks(context_id, updated_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadContext retrieves the transcript of a context.
func (s *SQLiteStore) LoadContext(ctx context.Context, contextID string) (domain.Context, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM contexts WHERE context_id = ?`, contextID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs domain.Context
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, fmt.Errorf("failed to decode context %s: %w", contextID, err)
	}
	return msgs, nil
}

// UpdateContext replaces the stored transcript of a context.
func (s *SQLiteStore) UpdateContext(ctx context.Context, contextID string, messages domain.Context) error {
	if messages == nil {
		messages = domain.Context{}
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to encode context %s: %w", contextID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contexts (context_id, messages, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(context_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		contextID, string(data), time.Now())
	return err
}

// LoadTask retrieves a task record by ID.
func (s *SQLiteStore) LoadTask(ctx context.Context, taskID string) (*domain.TaskRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM tasks WHERE task_id = ?`, taskID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var task domain.TaskRecord
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, fmt.Errorf("failed to decode task %s: %w", taskID, err)
	}
	return &task, nil
}

// UpdateTask upserts a task record.
func (s *SQLiteStore) UpdateTask(ctx context.Context, task *domain.TaskRecord) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task %s: %w", task.TaskID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, context_id, agent_name, status, record, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_id) DO UPDATE SET status = excluded.status, record = excluded.record, updated_at = excluded.updated_at`,
		task.TaskID, task.ContextID, task.AgentName, string(task.Status), string(data), time.Now())
	return err
}
