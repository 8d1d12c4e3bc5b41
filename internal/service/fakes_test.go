package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sakif/gat-accounts/internal/apperror"
	"github.com/sakif/gat-accounts/internal/auth"
	"github.com/sakif/gat-accounts/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeStore is an in-memory repository.Store.
// A fake (not a mock framework) keeps the tests easy to read: you can see
// exactly what each call does.
type fakeStore struct {
	mu      sync.Mutex
	entries map[model.Namespace]map[string]*model.Entry
	// set to a non-nil error to simulate a store failure
	getErr     error
	putErr     error
	putManyErr error
	pingErr    error
	// number of PutMany calls, to check batching
	batches int
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[model.Namespace]map[string]*model.Entry)}
}

func (f *fakeStore) Get(_ context.Context, ns model.Namespace, key string) (*model.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	e, ok := f.entries[ns][key]
	if !ok {
		return nil, apperror.NotFound(string(ns), key)
	}
	copied := *e
	return &copied, nil
}

func (f *fakeStore) Put(_ context.Context, ns model.Namespace, key, value, metadata string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.set(model.Write{Namespace: ns, Key: key, Value: value, Metadata: metadata})
	return nil
}

func (f *fakeStore) PutMany(_ context.Context, writes ...model.Write) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.putManyErr != nil {
		return f.putManyErr
	}
	for _, w := range writes {
		if w.IfAbsent {
			if _, ok := f.entries[w.Namespace][w.Key]; ok {
				continue
			}
		}
		f.set(w)
	}
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) Close() error { return nil }

// set stores w. Callers hold f.mu.
func (f *fakeStore) set(w model.Write) {
	if f.entries[w.Namespace] == nil {
		f.entries[w.Namespace] = make(map[string]*model.Entry)
	}
	now := time.Now()
	f.entries[w.Namespace][w.Key] = &model.Entry{
		Namespace: w.Namespace,
		Key:       w.Key,
		Value:     w.Value,
		Metadata:  w.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// value returns the raw stored value, or "" if absent.
func (f *fakeStore) value(ns model.Namespace, key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[ns][key]
	if !ok {
		return "", false
	}
	return e.Value, true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func newTestAccountService(t *testing.T, store *fakeStore) *AccountService {
	t.Helper()
	return NewAccountService(store, newTestTokens(t), testLogger())
}

func bob() auth.Credential {
	return auth.Credential{"user": "bob", "pin": float64(1234)}
}
