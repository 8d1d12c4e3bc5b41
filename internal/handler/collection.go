package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/gat-accounts/internal/api"
	"github.com/sakif/gat-accounts/internal/apperror"
	"github.com/sakif/gat-accounts/internal/auth"
	"github.com/sakif/gat-accounts/internal/model"
)

// Collections is the collection logic the handlers need.
// *service.CollectionService implements it.
type Collections interface {
	Get(ctx context.Context, ns model.Namespace, id auth.Identity) (json.RawMessage, error)
	Put(ctx context.Context, ns model.Namespace, id auth.Identity, body []byte) error
}

// CollectionHandler serves one per-user collection (inventory or favorites).
//
// Every route it serves must sit behind auth.RequireAuth: the handler
// reads the verified Identity from the request context and uses its token
// as the partition key.
type CollectionHandler struct {
	ns         model.Namespace
	collection Collections
	// updated is the success message of a POST.
	updated string
	logger  *slog.Logger
}

// NewInventoryHandler serves GET/POST /inventory.
func NewInventoryHandler(collection Collections, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{ns: model.Inventory, collection: collection, updated: "OK", logger: logger}
}

// NewFavoritesHandler serves GET/POST /favorites.
func NewFavoritesHandler(collection Collections, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{ns: model.Favorites, collection: collection, updated: "Favorites updated!", logger: logger}
}

// HandleGet returns the caller's collection.
//
// 200 "OK" with the stored JSON as body, or 404 "Not found" with body []
// when nothing (or only an empty value) is stored.
func (h *CollectionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		// Should never happen on a RequireAuth-protected route, but be safe.
		api.WriteError(w, apperror.MissingCredential())
		return
	}

	body, err := h.collection.Get(r.Context(), h.ns, id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			api.WriteJSON(w, http.StatusNotFound, "Not found", []any{})
			return
		}
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, "OK", body)
}

// HandlePost replaces the caller's collection with the request body.
//
// The body is any JSON value except null; its shape is not checked.
func (h *CollectionHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		api.WriteError(w, apperror.MissingCredential())
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("reading collection body failed",
			slog.String("namespace", string(h.ns)),
			slog.String("error", err.Error()),
		)
		api.WriteError(w, apperror.InvalidBody(err))
		return
	}

	if err := h.collection.Put(r.Context(), h.ns, id, raw); err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, h.updated, nil)
}
