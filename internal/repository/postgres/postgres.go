// Package postgres implements repository.Store on top of PostgreSQL.
//
// It is the backend for deployments that already run Postgres. The schema
// is the same single kv table as the sqlite backend, managed by goose
// migrations embedded in the binary.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/sakif/gat-accounts/internal/repository/postgres/migrations"
)

// PgxPool is the subset of a connection pool the store needs.
// It is implemented by *pgxpool.Pool and pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// DB wraps a pgx pool and implements repository.Store.
type DB struct{ Pool PgxPool }

// New runs pending migrations and opens a connection pool for dsn.
func New(ctx context.Context, dsn string) (*DB, error) {
	if err := Migrate(ctx, dsn); err != nil {
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the underlying pool.
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Migrate applies the embedded goose migrations.
//
// goose speaks database/sql, so it gets its own short-lived connection
// through the pgx stdlib driver; the store itself uses the native pool.
func Migrate(ctx context.Context, dsn string) error {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, sqlDB, ".")
}
