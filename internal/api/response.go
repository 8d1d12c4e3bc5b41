// Package api holds the response envelope shared by every HTTP surface:
// route handlers, the auth gate and the router's fallback handlers.
//
// EVERY RESPONSE HAS THE SAME SHAPE:
//
//	{"message": "OK", "status": 200, "body": ...}
//
// and the HTTP status code always equals the "status" field, so clients
// that only read the JSON and clients that only read the status line agree.
//
// It lives in its own package (not internal/handler) because the auth
// middleware must write envelopes too, and handler imports auth.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/gat-accounts/internal/apperror"
)

// ContentTypeJSON is the content type of every envelope.
const ContentTypeJSON = "application/json;charset=UTF-8"

// Envelope is the JSON body of every API response.
// Body is omitted when nil.
type Envelope struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
	Body    any    `json:"body,omitempty"`
}

// WriteJSON sends an envelope with the given status, message and body.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written; once
// Encode writes, further header changes are silently ignored.
func WriteJSON(w http.ResponseWriter, status int, message string, body any) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	env := Envelope{Message: message, Status: status, Body: body}
	if err := json.NewEncoder(w).Encode(env); err != nil {
		// Headers are already sent; all we can do is log.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// WriteError maps a domain error to its HTTP status and sends it.
//
// ERROR MAPPING:
// Services and the auth gate return apperror categories;
// this is the single place where categories become status codes.
// Unknown errors become a generic 500; internal details never leak.
func WriteError(w http.ResponseWriter, err error) {
	status, message := Classify(err)
	WriteJSON(w, status, message, nil)
}

// Classify returns the HTTP status and client-facing message for err.
func Classify(err error) (int, string) {
	var appErr *apperror.AppError
	hasAppErr := errors.As(err, &appErr)

	message := func(fallback string) string {
		if hasAppErr && appErr.Message != "" {
			return appErr.Message
		}
		return fallback
	}

	switch {
	case errors.Is(err, apperror.ErrMissingCredential):
		return http.StatusBadRequest, message("Bad request")
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, message("Invalid body")
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, message("Not found")
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway, message("storage unavailable")
	}

	return http.StatusInternalServerError, "An internal error occurred"
}
