// ABOUTME: SQLite implementation of the store interfaces using modernc.org/sqlite
// ABOUTME: Handles schema creation, idempotent migrations, and transactions

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbtx is the subset of *sql.DB and *sql.Tx the device operations need,
// so the same code runs inside and outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements TokenStore, DeviceStore, and UserStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Foreign keys drive the network_states cascade delete
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

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			display_name  TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

		CREATE TABLE IF NOT EXISTS agent_tokens (
			id                 TEXT PRIMARY KEY,
			owner_id           TEXT NOT NULL REFERENCES users(id),
			name               TEXT NOT NULL,
			secret_hash        TEXT NOT NULL UNIQUE,
			secret_prefix      TEXT NOT NULL,
			created_at         TEXT NOT NULL,
			last_used_at       TEXT,
			revoked_at         TEXT,

			approved           INTEGER NOT NULL DEFAULT 0,
			agent_install_id   TEXT,
			agent_mac          TEXT,
			agent_hostname     TEXT,
			agent_ip           TEXT,
			first_connected_at TEXT,
			last_heartbeat_at  TEXT,

			CHECK (approved = 0 OR agent_install_id IS NOT NULL)
		);

		CREATE INDEX IF NOT EXISTS idx_agent_tokens_owner ON agent_tokens(owner_id);
		CREATE INDEX IF NOT EXISTS idx_agent_tokens_hash ON agent_tokens(secret_hash);

		CREATE TABLE IF NOT EXISTS devices (
			id           TEXT PRIMARY KEY,
			owner_id     TEXT NOT NULL REFERENCES users(id),
			name         TEXT NOT NULL,
			mac_address  TEXT,
			status       TEXT NOT NULL,
			last_seen_at TEXT,
			created_at   TEXT NOT NULL,

			CHECK (status IN ('online', 'offline', 'away'))
		);

		CREATE INDEX IF NOT EXISTS idx_devices_owner ON devices(owner_id);
		CREATE INDEX IF NOT EXISTS idx_devices_owner_mac ON devices(owner_id, mac_address);

		CREATE TABLE IF NOT EXISTS network_states (
			device_id        TEXT PRIMARY KEY REFERENCES devices(id) ON DELETE CASCADE,
			ip_address       TEXT,
			is_authoritative INTEGER NOT NULL DEFAULT 1,
			updated_at       TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "agent_tokens",
			column: "agent_ip",
			apply:  `ALTER TABLE agent_tokens ADD COLUMN agent_ip TEXT`,
		},
		{
			table:  "agent_tokens",
			column: "last_heartbeat_at",
			apply:  `ALTER TABLE agent_tokens ADD COLUMN last_heartbeat_at TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		check := fmt.Sprintf(`SELECT 1 FROM pragma_table_info('%s') WHERE name = ?`, m.table)
		err := s.db.QueryRow(check, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// DeviceTx runs fn inside a single transaction. Used by sync so the
// read-diff-apply sequence cannot interleave with a concurrent sync
// for the same owner.
func (s *SQLiteStore) DeviceTx(ctx context.Context, fn func(ops DeviceOps) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	ops := &deviceOps{q: tx, logger: s.logger}
	if err := fn(ops); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("rolling back device transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing device transaction: %w", err)
	}
	return nil
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Interface assertions
var _ TokenStore = (*SQLiteStore)(nil)
var _ DeviceStore = (*SQLiteStore)(nil)
var _ UserStore = (*SQLiteStore)(nil)
