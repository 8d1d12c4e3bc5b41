package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/gat-accounts/internal/api"
	"github.com/sakif/gat-accounts/internal/apperror"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or shadow the verified identity.
type contextKey string

const identityKey contextKey = "identity"

// HeaderName is the request header that carries the bearer token.
const HeaderName = "Authorization"

// Identity is what the gate attaches to a verified request.
type Identity struct {
	// Token is the exact token string the client presented (minus an
	// optional "Bearer " prefix). It doubles as the storage partition key.
	Token string
	// Credential is the verified payload decoded from the token.
	Credential Credential
	// Key is the IdentityKey of Credential, used as write metadata.
	Key IdentityKey
}

// RequireAuth is a middleware that enforces authentication on protected routes.
//
// For each request it:
//  1. reads the Authorization header; absent or blank → 400 "Bad request"
//  2. verifies the token; any failure → 401 "Unauthorized"
//  3. stores an Identity in the request context and calls next
//
// The gate never touches external state: it is a pure decision boundary.
//
// NOTE: a missing credential is answered with 400, not 401. Clients of the
// original service depend on that distinction.
func RequireAuth(tokens *TokenService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerValue(r)
			if raw == "" {
				api.WriteError(w, apperror.MissingCredential())
				return
			}

			id, err := verifyIdentity(tokens, raw)
			if err != nil {
				logger.Debug("rejected bearer token",
					slog.String("path", r.URL.Path),
					slog.String("reason", err.Error()),
				)
				api.WriteError(w, apperror.Unauthorized(err))
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retrieves the verified identity from the request context.
//
// Returns (Identity{}, false) if the request did not pass through RequireAuth.
//
// Usage in handlers:
//
//	id, ok := auth.IdentityFromContext(r.Context())
//	if !ok {
//	    // route is not protected
//	}
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.Token != ""
}

// WithIdentity returns a copy of ctx carrying id. Used by tests and by
// callers that verify tokens outside of HTTP.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// bearerValue extracts the token from the Authorization header.
// The raw value is the token; a leading "Bearer " is tolerated and removed.
// The scheme alone, with no token after it, counts as no credential.
func bearerValue(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get(HeaderName))
	if strings.EqualFold(v, "Bearer") {
		return ""
	}
	if len(v) > len("Bearer ") && strings.EqualFold(v[:len("Bearer ")], "Bearer ") {
		v = strings.TrimSpace(v[len("Bearer "):])
	}
	return v
}

func verifyIdentity(tokens *TokenService, raw string) (Identity, error) {
	cred, err := tokens.Verify(raw)
	if err != nil {
		return Identity{}, err
	}

	key, err := DeriveKey(cred)
	if err != nil {
		// A correctly signed payload that cannot be canonicalized was not
		// issued by this service.
		return Identity{}, errors.Join(ErrMalformedToken, err)
	}

	return Identity{Token: raw, Credential: cred, Key: key}, nil
}
