package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/gat-accounts/internal/apperror"
	"github.com/sakif/gat-accounts/internal/auth"
	"github.com/sakif/gat-accounts/internal/model"
	"github.com/sakif/gat-accounts/internal/repository"
)

// CollectionService reads and replaces the per-user collections.
//
// The token is the partition key: the same token always addresses the
// same inventory and favorites. Values are opaque JSON; the service only
// checks that they parse.
type CollectionService struct {
	store  repository.Store
	logger *slog.Logger
}

// NewCollectionService creates a CollectionService.
func NewCollectionService(store repository.Store, logger *slog.Logger) *CollectionService {
	return &CollectionService{store: store, logger: logger}
}

// Get returns the stored collection for id.
//
// A collection that was never written, or holds only [], {} or null, is
// reported as apperror.ErrNotFound with message "Not found".
func (s *CollectionService) Get(ctx context.Context, ns model.Namespace, id auth.Identity) (json.RawMessage, error) {
	if err := checkCollection(ns); err != nil {
		return nil, err
	}

	entry, err := s.store.Get(ctx, ns, id.Token)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, notFound(err)
		}
		s.logger.Error("collection read failed",
			slog.String("namespace", string(ns)),
			slog.String("identityKey", string(id.Key)),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("read "+string(ns), err)
	}

	if isEmptyValue(entry.Value) {
		return nil, notFound(nil)
	}

	raw := json.RawMessage(entry.Value)
	if !json.Valid(raw) {
		// Stored before validation existed, or written by another client.
		return nil, fmt.Errorf("service/collection: stored %s value is not JSON", ns)
	}
	return raw, nil
}

// Put replaces the collection for id with body.
//
// body must be valid JSON other than null. It is stored compacted, with
// the owner's IdentityKey as metadata.
func (s *CollectionService) Put(ctx context.Context, ns model.Namespace, id auth.Identity, body []byte) error {
	if err := checkCollection(ns); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, bytes.TrimSpace(body)); err != nil {
		return apperror.InvalidBody(err)
	}
	if buf.Len() == 0 || buf.String() == "null" {
		return apperror.InvalidBody(errors.New("collection must not be null"))
	}

	if err := s.store.Put(ctx, ns, id.Token, buf.String(), string(id.Key)); err != nil {
		s.logger.Error("collection write failed",
			slog.String("namespace", string(ns)),
			slog.String("identityKey", string(id.Key)),
			slog.String("error", err.Error()),
		)
		return apperror.Upstream("write "+string(ns), err)
	}

	s.logger.Debug("collection updated",
		slog.String("namespace", string(ns)),
		slog.String("identityKey", string(id.Key)),
		slog.Int("bytes", buf.Len()),
	)
	return nil
}

func checkCollection(ns model.Namespace) error {
	if ns != model.Inventory && ns != model.Favorites {
		return fmt.Errorf("service/collection: %q is not a collection namespace", ns)
	}
	return nil
}

func notFound(cause error) *apperror.AppError {
	return &apperror.AppError{Err: apperror.ErrNotFound, Message: "Not found", Cause: cause}
}

// isEmptyValue reports whether v is an empty array, empty object or null,
// ignoring insignificant whitespace.
func isEmptyValue(v string) bool {
	trimmed := bytes.TrimSpace([]byte(v))
	if len(trimmed) == 0 {
		return true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return false
	}
	switch buf.String() {
	case "[]", "{}", "null":
		return true
	}
	return false
}
