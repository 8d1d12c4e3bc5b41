// Package repository declares the contract of the external key-value store.
//
// The store is a plain associative map per namespace: get and put, no
// delete, no list. Backends live in sub-packages (sqlite, postgres);
// services depend only on the Store interface.
package repository

import (
	"context"

	"github.com/sakif/gat-accounts/internal/model"
)

// Store is the external key-value store.
//
// Get returns apperror.ErrNotFound when the key is absent.
// PutMany applies all writes atomically: either every write is applied
// (IfAbsent writes on existing keys count as applied) or none is.
type Store interface {
	Get(ctx context.Context, ns model.Namespace, key string) (*model.Entry, error)
	Put(ctx context.Context, ns model.Namespace, key, value, metadata string) error
	PutMany(ctx context.Context, writes ...model.Write) error
	Ping(ctx context.Context) error
	Close() error
}
