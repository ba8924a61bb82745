// Package postgres provides the PostgreSQL engine for the trial store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/warp/trialdb/store/sqlstore"
	"github.com/warp/trialdb/trial"
)

const (
	defaultDriver = "pgx"
	// DefaultHost is fixed; credentials come from the environment.
	DefaultHost     = "localhost"
	DefaultPort     = 5432
	DefaultDatabase = "postgres"
	DefaultSchema   = "clinical_trial_db"
)

// SQLSTATE codes for integrity constraint violations.
const (
	codeNotNull    = "23502"
	codeForeignKey = "23503"
	codeUnique     = "23505"
	codeCheck      = "23514"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Options describes how to reach the server. DSN, when set, wins over the
// individual fields except Schema.
type Options struct {
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Schema   string
	SSLMode  string
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.Database == "" {
		o.Database = DefaultDatabase
	}
	if o.Schema == "" {
		o.Schema = DefaultSchema
	}
	if o.SSLMode == "" {
		o.SSLMode = "disable"
	}
	return o
}

// ConnString builds the connection URL. search_path points at the trial
// schema so unqualified relation names resolve there.
func (o Options) ConnString() (string, error) {
	o = o.withDefaults()
	if o.DSN != "" {
		u, err := url.Parse(o.DSN)
		if err != nil {
			return "", fmt.Errorf("parse dsn: %w", err)
		}
		q := u.Query()
		if q.Get("search_path") == "" {
			q.Set("search_path", o.Schema)
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		Path:   "/" + o.Database,
	}
	if o.User != "" {
		if o.Password != "" {
			u.User = url.UserPassword(o.User, o.Password)
		} else {
			u.User = url.User(o.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", o.SSLMode)
	q.Set("search_path", o.Schema)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Store is a sqlstore.Store backed by PostgreSQL.
type Store struct {
	*sqlstore.Store
}

// New connects to PostgreSQL. Connection failures are ConfigurationErrors.
func New(ctx context.Context, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	dsn, err := opts.ConnString()
	if err != nil {
		return nil, &trial.ConfigurationError{Op: "build postgres dsn", Err: err}
	}

	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, &trial.ConfigurationError{Op: "open postgres", Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &trial.ConfigurationError{Op: "connect postgres", Err: err}
	}
	return &Store{Store: sqlstore.New(db, Dialect{Schema: opts.Schema})}, nil
}

// Dialect is the PostgreSQL sqlstore.Dialect.
type Dialect struct {
	Schema string
}

func (Dialect) Name() string { return "postgres" }

func (d Dialect) Namespace() []string {
	return []string{"CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{d.Schema}.Sanitize()}
}

func (Dialect) DDL() string { return sqlstore.PostgresDDL }

func (Dialect) Rebind(query string) string { return sqlstore.RebindDollar(query) }

// Classify maps SQLSTATE class 23 codes to violations.
func (Dialect) Classify(err error) sqlstore.Violation {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return sqlstore.NoViolation
	}
	switch pgErr.Code {
	case codeUnique:
		return sqlstore.UniqueViolation
	case codeForeignKey:
		return sqlstore.ForeignKeyViolation
	case codeCheck:
		return sqlstore.CheckViolation
	case codeNotNull:
		return sqlstore.NotNullViolation
	}
	return sqlstore.NoViolation
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
