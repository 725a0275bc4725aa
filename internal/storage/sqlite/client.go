package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows one writer at a time
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// Ping is used by the readiness probe.
func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		columns TEXT NOT NULL,
		row_count INTEGER NOT NULL DEFAULT 0,
		task_type TEXT,
		tags TEXT,
		format TEXT,
		validation_errors TEXT,
		uploaded_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_uploaded ON datasets(uploaded_at);
	CREATE INDEX IF NOT EXISTS idx_datasets_uid ON datasets(uid);

	CREATE TABLE IF NOT EXISTS dataset_rows (
		dataset_id TEXT NOT NULL,
		row_index INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (dataset_id, row_index),
		FOREIGN KEY (dataset_id) REFERENCES datasets(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS evaluation_runs (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		name TEXT NOT NULL,
		description TEXT,
		dataset_id TEXT NOT NULL,
		dataset_name TEXT,
		task_type TEXT,
		deployments TEXT NOT NULL,
		category_id TEXT,
		metrics TEXT NOT NULL,
		settings TEXT NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		results TEXT,
		error TEXT,
		created_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON evaluation_runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON evaluation_runs(status);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}
