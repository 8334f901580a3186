// Package store persists consolidated catalog records in SQLite or Postgres.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"sjsage522/bikecrawler/logger"
	apperrors "sjsage522/bikecrawler/pkg/errors"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// dbtx is satisfied by *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs the catalog statements against a database or a transaction.
// Statements are written with ? placeholders and rebound for Postgres.
type Queries struct {
	db     dbtx
	driver string
}

func (q *Queries) rebind(query string) string {
	if q.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

// Store is an open catalog database
type Store struct {
	*Queries
	db *sql.DB
}

// Open connects to the database and applies the schema. driver is "sqlite" (dsn is a file
// path or ":memory:") or "postgres" (dsn is a connection string).
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	log := logger.ForStore()

	var schema string
	switch driver {
	case DriverSQLite:
		schema = sqliteSchema
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, apperrors.NewStorage("failed to create database directory", err)
			}
		}
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, apperrors.NewConfiguration(fmt.Sprintf("unsupported database driver %q", driver), nil)
	}

	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, apperrors.NewStorage("failed to open database", err)
	}

	if driver == DriverSQLite {
		// a ":memory:" database lives and dies with its connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperrors.NewStorage("failed to connect to database", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, apperrors.NewStorage("failed to apply schema", err)
	}

	log.Info().Str("driver", driver).Msg("Database ready")
	return &Store{Queries: &Queries{db: db, driver: driver}, db: db}, nil
}

// sqliteDSN turns on foreign keys for every connection the pool opens
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=foreign_keys") {
		return dsn
	}
	if dsn == ":memory:" {
		dsn = "file::memory:"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

// InTx runs fn in a transaction, committing when it returns nil
func (s *Store) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorage("failed to begin transaction", err)
	}

	if err := fn(&Queries{db: tx, driver: s.driver}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.ForStore().Warn().Err(rbErr).Msg("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorage("failed to commit transaction", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
