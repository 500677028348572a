package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
)

// SQLiteStore implements Store on a local SQLite file
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
// Use ":memory:" for an ephemeral store.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, rterrors.FileSystemError(err, "create database directory")
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, rterrors.DatabaseError(err, "connect to sqlite")
	}
	if path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, rterrors.DatabaseError(err, "init schema")
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kickoffs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		inputs TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS task_outputs (
		task_id TEXT PRIMARY KEY,
		kickoff_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		task_name TEXT NOT NULL,
		agent TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL DEFAULT '',
		output_file TEXT NOT NULL DEFAULT '',
		started_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL,
		FOREIGN KEY (kickoff_id) REFERENCES kickoffs(id)
	);

	CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent TEXT NOT NULL,
		task_name TEXT NOT NULL,
		kickoff_id TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_task_outputs_kickoff ON task_outputs(kickoff_id, position);
	CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Kickoff operations
func (s *SQLiteStore) CreateKickoff(ctx context.Context, k *Kickoff) error {
	if k.StartedAt.IsZero() {
		k.StartedAt = time.Now().UTC()
	}
	if k.Status == "" {
		k.Status = StatusRunning
	}
	if k.Inputs == "" {
		k.Inputs = "{}"
	}
	query := `
		INSERT INTO kickoffs (id, mode, inputs, status, started_at, finished_at)
		VALUES (:id, :mode, :inputs, :status, :started_at, :finished_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, k)
	return err
}

func (s *SQLiteStore) FinishKickoff(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kickoffs SET status = ?, finished_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("kickoff %s: %w", id, ErrNotFound)
	}
	return nil
}

// LatestKickoff returns the most recently started kickoff that produced at
// least one task output.
func (s *SQLiteStore) LatestKickoff(ctx context.Context) (*Kickoff, error) {
	var k Kickoff
	query := `
		SELECT k.* FROM kickoffs k
		WHERE EXISTS (SELECT 1 FROM task_outputs t WHERE t.kickoff_id = k.id)
		ORDER BY k.started_at DESC, k.rowid DESC
		LIMIT 1
	`
	err := s.db.GetContext(ctx, &k, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

// Task output operations
func (s *SQLiteStore) SaveTaskOutput(ctx context.Context, out *TaskOutput) error {
	query := `
		INSERT OR REPLACE INTO task_outputs
		(task_id, kickoff_id, position, task_name, agent, description, output, output_file, started_at, completed_at)
		VALUES (:task_id, :kickoff_id, :position, :task_name, :agent, :description, :output, :output_file, :started_at, :completed_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, out)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"task_id":  out.TaskID,
		"task":     out.TaskName,
		"kickoff":  out.KickoffID,
		"position": out.Position,
	}).Debug("task output saved")
	return nil
}

func (s *SQLiteStore) TaskOutputs(ctx context.Context, kickoffID string) ([]*TaskOutput, error) {
	var outputs []*TaskOutput
	query := `SELECT * FROM task_outputs WHERE kickoff_id = ? ORDER BY position`
	if err := s.db.SelectContext(ctx, &outputs, query, kickoffID); err != nil {
		return nil, err
	}
	return outputs, nil
}

func (s *SQLiteStore) FindTask(ctx context.Context, taskID string) (*TaskOutput, error) {
	var out TaskOutput
	err := s.db.GetContext(ctx, &out, `SELECT * FROM task_outputs WHERE task_id = ?`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Memory operations
func (s *SQLiteStore) SaveMemory(ctx context.Context, m *Memory) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO memories (agent, task_name, kickoff_id, content, created_at)
		VALUES (:agent, :task_name, :kickoff_id, :content, :created_at)
	`, m)
	if err != nil {
		return err
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

// RecentMemories returns up to limit memories for agent, newest first.
func (s *SQLiteStore) RecentMemories(ctx context.Context, agent string, limit int) ([]*Memory, error) {
	var memories []*Memory
	query := `SELECT * FROM memories WHERE agent = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &memories, query, agent, limit); err != nil {
		return nil, err
	}
	return memories, nil
}
