package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/gat-accounts/internal/apperror"
	"github.com/sakif/gat-accounts/internal/model"
	"github.com/sakif/gat-accounts/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

const (
	upsertSQL = `INSERT INTO kv (namespace, key, value, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE
		SET value = excluded.value, metadata = excluded.metadata, updated_at = excluded.updated_at`

	insertIfAbsentSQL = `INSERT INTO kv (namespace, key, value, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO NOTHING`
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Get returns the entry stored under (ns, key).
// Returns apperror.ErrNotFound if there is none.
func (db *DB) Get(ctx context.Context, ns model.Namespace, key string) (*model.Entry, error) {
	e := model.Entry{Namespace: ns, Key: key}

	err := db.conn.QueryRowContext(ctx,
		`SELECT value, metadata, created_at, updated_at FROM kv WHERE namespace = ? AND key = ?`,
		string(ns), key,
	).Scan(&e.Value, &e.Metadata, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound(string(ns), key)
		}
		return nil, fmt.Errorf("sqlite: getting %s entry: %w", ns, err)
	}

	return &e, nil
}

// Put stores value under (ns, key), replacing any previous value.
// created_at is kept from the first write.
func (db *DB) Put(ctx context.Context, ns model.Namespace, key, value, metadata string) error {
	w := model.Write{Namespace: ns, Key: key, Value: value, Metadata: metadata}
	if err := applyWrite(ctx, db.conn, w, time.Now().UTC()); err != nil {
		return fmt.Errorf("sqlite: putting %s entry: %w", ns, err)
	}
	return nil
}

// PutMany applies writes in one transaction.
//
// All writes share one timestamp. If any write fails the transaction is
// rolled back and nothing is stored.
func (db *DB) PutMany(ctx context.Context, writes ...model.Write) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning batch: %w", err)
	}
	// Rollback after a successful Commit is a no-op (returns ErrTxDone).
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, w := range writes {
		if err := applyWrite(ctx, tx, w, now); err != nil {
			return fmt.Errorf("sqlite: batch write to %s: %w", w.Namespace, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing batch: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

func applyWrite(ctx context.Context, ex execer, w model.Write, now time.Time) error {
	if !w.Namespace.Valid() {
		return fmt.Errorf("unknown namespace %q", w.Namespace)
	}

	query := upsertSQL
	if w.IfAbsent {
		query = insertIfAbsentSQL
	}

	_, err := ex.ExecContext(ctx, query, string(w.Namespace), w.Key, w.Value, w.Metadata, now, now)
	return err
}
