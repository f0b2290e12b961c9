package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB represents the SQLite connection.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// Options tunes the connection pool. Zero values keep the defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewDB opens the database at path and creates tables if they don't exist.
func NewDB(path string, opts Options, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode, busy timeout and BEGIN IMMEDIATE so that concurrent writers
	// queue instead of failing on lock upgrade.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = time.Hour
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: db, path: path, logger: logger}
	if err := instance.createTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

func (db *DB) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS time_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('clock_in', 'clock_out', 'start_lunch', 'resume_shift')),
			occurred_at DATETIME NOT NULL,
			calendar_date TEXT NOT NULL,
			timezone TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS work_sessions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			session_date TEXT NOT NULL,
			clock_in_time DATETIME,
			clock_out_time DATETIME,
			lunch_start_time DATETIME,
			lunch_end_time DATETIME,
			status TEXT NOT NULL CHECK (status IN ('active', 'on_lunch', 'completed')),
			total_work_minutes INTEGER NOT NULL DEFAULT 0,
			total_lunch_minutes INTEGER NOT NULL DEFAULT 0,
			total_work_hours REAL NOT NULL DEFAULT 0,
			carried_work_minutes INTEGER NOT NULL DEFAULT 0,
			carried_lunch_minutes INTEGER NOT NULL DEFAULT 0,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, session_date)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_time_events_user_time ON time_events(user_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_time_events_user_kind_time ON time_events(user_id, kind, occurred_at)`,

		// At most one open session per user, across dates.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_work_sessions_one_open ON work_sessions(user_id) WHERE status <> 'completed'`,
	}

	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}
