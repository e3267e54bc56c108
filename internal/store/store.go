package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/lpsuspend/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades the journal from version-1 to version.
type migration struct {
	version int
	name    string
	stmt    string
}

// migrations are applied in order to journals whose user_version is below
// their version. The base schema in schema.sql is version 0.
var migrations = []migration{
	{1, "index transitions by state", `
		CREATE INDEX IF NOT EXISTS idx_transitions_state
		ON transitions(state, tx_id)`},
	{2, "record table format", `
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`},
}

var currentSchemaVersion = migrations[len(migrations)-1].version

// ErrFormatMismatch is returned by Open for a journal written with a
// different packed-table format. Program hashes in such a journal do not
// identify programs of this build.
var ErrFormatMismatch = errors.New("journal table format mismatch")

// Store is the durable journal of sleep transactions, kept in SQLite in WAL
// mode so the CLI can read while a sleep is journaled.
type Store struct {
	db     *sql.DB
	format string
}

// Open creates or opens the journal at path. ":memory:" gives a private
// in-memory journal. Opening the same file repeatedly is safe.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("connect journal: %w", err)
	}

	// SQLite has a single writer and ":memory:" databases are per connection.
	s.db.SetMaxOpenConns(1)
	s.db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if err := s.migrate(); err != nil {
		return err
	}
	return s.checkFormat()
}

// migrate brings the journal up to currentSchemaVersion, one migration per
// SQL transaction.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for _, m := range migrations {
		if version >= m.version {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		// PRAGMA takes no bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: set user_version: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
		version = m.version
	}
	return nil
}

// checkFormat stamps a new journal with ir.IRVersion and rejects one
// stamped with another format.
func (s *Store) checkFormat() error {
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('format', ?)`, ir.IRVersion); err != nil {
		return fmt.Errorf("stamp format: %w", err)
	}
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'format'`).Scan(&s.format); err != nil {
		return fmt.Errorf("read format: %w", err)
	}
	if s.format != ir.IRVersion {
		return fmt.Errorf("%w: journal has %q, this build writes %q", ErrFormatMismatch, s.format, ir.IRVersion)
	}
	return nil
}

// Format returns the packed-table format the journal was written with.
func (s *Store) Format() string {
	return s.format
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query executes a read-only query against the journal tables.
// Callers must close the returned rows before the next call, since the
// store holds a single connection.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// verifyPragma checks that a pragma is set to the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
