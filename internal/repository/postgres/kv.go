package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sakif/gat-accounts/internal/apperror"
	"github.com/sakif/gat-accounts/internal/model"
	"github.com/sakif/gat-accounts/internal/repository"
)

var _ repository.Store = (*DB)(nil)

const (
	selectSQL = `SELECT value, metadata, created_at, updated_at FROM kv WHERE namespace=$1 AND key=$2`

	upsertSQL = `INSERT INTO kv (namespace, key, value, metadata) VALUES ($1, $2, $3, $4) ` +
		`ON CONFLICT (namespace, key) DO UPDATE SET value=EXCLUDED.value, metadata=EXCLUDED.metadata, updated_at=now()`

	insertIfAbsentSQL = `INSERT INTO kv (namespace, key, value, metadata) VALUES ($1, $2, $3, $4) ` +
		`ON CONFLICT (namespace, key) DO NOTHING`
)

// Get selects the entry stored under (ns, key).
func (db *DB) Get(ctx context.Context, ns model.Namespace, key string) (*model.Entry, error) {
	e := model.Entry{Namespace: ns, Key: key}

	row := db.Pool.QueryRow(ctx, selectSQL, string(ns), key)
	if err := row.Scan(&e.Value, &e.Metadata, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound(string(ns), key)
		}
		return nil, fmt.Errorf("postgres: getting %s entry: %w", ns, err)
	}
	return &e, nil
}

// Put upserts value under (ns, key).
func (db *DB) Put(ctx context.Context, ns model.Namespace, key, value, metadata string) error {
	if !ns.Valid() {
		return fmt.Errorf("postgres: unknown namespace %q", ns)
	}
	if _, err := db.Pool.Exec(ctx, upsertSQL, string(ns), key, value, metadata); err != nil {
		return fmt.Errorf("postgres: putting %s entry: %w", ns, err)
	}
	return nil
}

// PutMany applies writes in one transaction.
func (db *DB) PutMany(ctx context.Context, writes ...model.Write) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("postgres: beginning batch: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("postgres: committing batch: %w", e)
		}
	}()

	for _, w := range writes {
		if !w.Namespace.Valid() {
			return fmt.Errorf("postgres: unknown namespace %q", w.Namespace)
		}
		q := upsertSQL
		if w.IfAbsent {
			q = insertIfAbsentSQL
		}
		if _, err = tx.Exec(ctx, q, string(w.Namespace), w.Key, w.Value, w.Metadata); err != nil {
			return fmt.Errorf("postgres: batch write to %s: %w", w.Namespace, err)
		}
	}
	return nil
}

// Ping checks that the pool can reach the server.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: ping: %w", err)
	}
	return nil
}
