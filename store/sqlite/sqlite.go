/*
Package sqlite provides the SQLite engine for the trial store.

PURPOSE:
  Opens a SQLite database (file or ":memory:") with foreign keys enabled
  and hands it to sqlstore with the SQLite dialect. Schema, upserts and
  reads live in store/sqlstore.

NAMESPACE:
  The database file is the namespace. Its parent directory is created on
  open; the file itself is created by the driver. "file:" URIs are passed
  through as-is, and any query they carry is kept.

FOREIGN KEYS:
  SQLite ignores REFERENCES clauses unless the pragma is on, so the DSN
  always carries _foreign_keys=on.

CONNECTIONS:
  A single connection is used. ":memory:" databases are per-connection,
  and the loader is a single writer anyway.

USAGE:
  store, err := sqlite.New("./data/clinical_trial.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  if err := store.EnsureSchema(ctx); err != nil { ... }

SEE ALSO:
  - store/sqlstore: Shared implementation
  - store/postgres: PostgreSQL engine
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/trialdb/store/sqlstore"
	"github.com/warp/trialdb/trial"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store is a sqlstore.Store backed by SQLite.
type Store struct {
	*sqlstore.Store
}

// New opens the SQLite database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, &trial.ConfigurationError{Op: "open sqlite", Err: errors.New("empty database path")}
	}
	if dbPath != MemoryPath && !strings.HasPrefix(dbPath, "file:") {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, &trial.ConfigurationError{Op: "create database directory", Err: err}
			}
		}
	}

	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, &trial.ConfigurationError{Op: "open sqlite", Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, &trial.ConfigurationError{Op: "open sqlite", Err: fmt.Errorf("%s: %w", dbPath, err)}
	}

	return &Store{Store: sqlstore.New(db, Dialect{})}, nil
}

// dsn appends the connection parameters to dbPath, which may be a plain
// path or a "file:" URI that already carries a query.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on&_journal_mode=WAL"
}

// Dialect is the SQLite sqlstore.Dialect.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Namespace() []string { return nil }

func (Dialect) DDL() string { return sqlstore.SQLiteDDL }

func (Dialect) Rebind(query string) string { return query }

// Classify maps SQLite extended result codes to violations.
func (Dialect) Classify(err error) sqlstore.Violation {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintUnique:
			return sqlstore.UniqueViolation
		case sqlite3.ErrConstraintForeignKey:
			return sqlstore.ForeignKeyViolation
		case sqlite3.ErrConstraintCheck:
			return sqlstore.CheckViolation
		case sqlite3.ErrConstraintNotNull:
			return sqlstore.NotNullViolation
		}
	}
	// Fall back to the message for wrapped driver errors.
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "UNIQUE constraint failed"):
			return sqlstore.UniqueViolation
		case strings.Contains(msg, "FOREIGN KEY constraint failed"):
			return sqlstore.ForeignKeyViolation
		case strings.Contains(msg, "CHECK constraint failed"):
			return sqlstore.CheckViolation
		case strings.Contains(msg, "NOT NULL constraint failed"):
			return sqlstore.NotNullViolation
		}
	}
	return sqlstore.NoViolation
}
