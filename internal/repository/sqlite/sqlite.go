// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite, so the binary builds without CGo and
// cross-compiles anywhere Go does. It also lets us register Go functions as SQL
// functions, which is how the popularity score reaches ORDER BY (see score.go).
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB:   a connection pool (NOT a single connection!)
//   - sql.Tx:   a transaction
//   - sql.Rows: multiple result rows (must be closed!)
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/alternatives.db" → file-based database (persistent)
//   - ":memory:"             → in-memory database (tests)
//
// PER-CONNECTION PRAGMAS:
// foreign_keys and busy_timeout are connection settings, not database settings.
// A plain `PRAGMA foreign_keys=ON` would only reach whichever pooled connection
// happened to run it, so we pass them in the DSN and the driver applies them to
// every connection it opens.
func New(dbPath string) (*DB, error) {
	registerFunctions()

	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a brand new empty database.
	// One connection keeps the schema and data visible to every query.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress. It is stored in
	// the database file, so running it once is enough.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

var registerOnce sync.Once

// registerFunctions installs our Go SQL functions into the driver. The driver
// keeps a global registry and panics on duplicate names, hence the Once.
func registerFunctions() {
	registerOnce.Do(func() {
		sqlitedriver.MustRegisterDeterministicScalarFunction(scoreFunction, 2, scoreSQL)
	})
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tools (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			name                 TEXT NOT NULL,
			slug                 TEXT NOT NULL UNIQUE,
			description          TEXT NOT NULL DEFAULT '',
			website_url          TEXT NOT NULL DEFAULT '',
			repo_url             TEXT NOT NULL,
			tags                 TEXT NOT NULL DEFAULT '[]',
			github_stars         INTEGER,
			github_forks         INTEGER,
			github_issues        INTEGER,
			github_last_commit   DATETIME,
			status               TEXT NOT NULL DEFAULT 'pending'
			                     CHECK (status IN ('pending', 'approved', 'rejected')),
			submitted_by_user_id TEXT,
			created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tools_status ON tools(status);
		CREATE INDEX IF NOT EXISTS idx_tools_repo_url ON tools(repo_url);
		CREATE INDEX IF NOT EXISTS idx_tools_submitted_by ON tools(submitted_by_user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating tools table: %w", err)
	}

	// Edges are directed. Deleting either endpoint deletes the edge.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tool_alternatives (
			original_tool_id    INTEGER NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
			alternative_tool_id INTEGER NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (original_tool_id, alternative_tool_id),
			CHECK (original_tool_id <> alternative_tool_id)
		);
		CREATE INDEX IF NOT EXISTS idx_tool_alternatives_alt ON tool_alternatives(alternative_tool_id);
	`)
	if err != nil {
		return fmt.Errorf("creating tool_alternatives table: %w", err)
	}

	// UNIQUE(user_id, tool_id) is what makes double voting impossible under
	// concurrent requests. There is no FK on user_id: users are a mirror of the
	// identity provider and may arrive after their first vote.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS votes (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL,
			tool_id    INTEGER NOT NULL REFERENCES tools(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, tool_id)
		);
		CREATE INDEX IF NOT EXISTS idx_votes_tool_id ON votes(tool_id);
	`)
	if err != nil {
		return fmt.Errorf("creating votes table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			email      TEXT UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name  TEXT NOT NULL DEFAULT '',
			image_url  TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// last_login_at came later than the users table; keep old files working.
	if err := db.addColumnIfNotExists("users", "last_login_at", "DATETIME"); err != nil {
		return fmt.Errorf("adding last_login_at to users: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, so they can run on every start.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// CONSTRAINT DETECTION:
// The driver reports constraint failures as *sqlitedriver.Error with an
// extended result code. Matching on the code is exact; the message fallback
// covers errors that were re-wrapped as plain strings on the way up.

func isUniqueViolation(err error) bool {
	var sqlErr *sqlitedriver.Error
	if errors.As(err, &sqlErr) {
		code := sqlErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var sqlErr *sqlitedriver.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
