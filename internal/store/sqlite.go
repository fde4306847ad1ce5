// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides credential/command/interaction persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		// Ensure parent directory exists
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// A single pooled connection: SQLite serializes writers anyway, and
	// it keeps a :memory: database visible to every goroutine.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
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
		CREATE TABLE IF NOT EXISTS bot_credentials (
			bot_user_id    TEXT PRIMARY KEY,
			application_id TEXT NOT NULL UNIQUE,
			owner_user_id  TEXT NOT NULL,
			display_name   TEXT NOT NULL,
			secret_hash    TEXT NOT NULL,
			generation     INTEGER NOT NULL DEFAULT 1,
			created_at     TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_credentials_owner
			ON bot_credentials(owner_user_id);

		CREATE TABLE IF NOT EXISTS slash_commands (
			application_id TEXT NOT NULL,
			guild_id       TEXT NOT NULL DEFAULT '',
			name           TEXT NOT NULL,
			description    TEXT NOT NULL,
			options_json   TEXT NOT NULL DEFAULT '[]',
			created_at     TEXT NOT NULL,

			PRIMARY KEY (application_id, guild_id, name),
			FOREIGN KEY (application_id) REFERENCES bot_credentials(application_id)
		);

		CREATE INDEX IF NOT EXISTS idx_commands_scope_name
			ON slash_commands(guild_id, name);

		CREATE TABLE IF NOT EXISTS interactions (
			id                  TEXT PRIMARY KEY,
			command_name        TEXT NOT NULL,
			guild_id            TEXT NOT NULL DEFAULT '',
			channel_id          TEXT NOT NULL,
			user_id             TEXT NOT NULL,
			owner_bot_id        TEXT NOT NULL,
			status              TEXT NOT NULL DEFAULT 'pending',
			response_content    TEXT,
			response_ephemeral  INTEGER NOT NULL DEFAULT 0,
			response_expires_at TEXT,
			created_at          TEXT NOT NULL,

			CHECK (status IN ('pending', 'responded', 'expired'))
		);

		CREATE INDEX IF NOT EXISTS idx_interactions_owner
			ON interactions(owner_bot_id, status);

		CREATE TABLE IF NOT EXISTS rate_buckets (
			key          TEXT PRIMARY KEY,
			count        INTEGER NOT NULL,
			window_start INTEGER NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return nil
}

// Ping verifies the database connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
