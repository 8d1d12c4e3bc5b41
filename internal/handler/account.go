// Package handler contains the HTTP handlers of the accounts API.
//
// Handlers only translate HTTP to service calls and back: decode the body,
// call one service method, write one envelope. Business rules live in
// internal/service; the status code of an error is decided by api.WriteError.
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
	"github.com/sakif/gat-accounts/internal/service"
)

// maxBodyBytes caps every request body the API reads.
const maxBodyBytes = 1 << 20

// Accounts is the account logic the handlers need.
// *service.AccountService implements it.
type Accounts interface {
	Login(ctx context.Context, cred auth.Credential) (string, error)
	Register(ctx context.Context, cred auth.Credential) (*service.RegisterResult, error)
	LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*service.RegisterResult, error)
	Ping(ctx context.Context) error
}

// AccountHandler serves the public registration and login routes.
type AccountHandler struct {
	accounts Accounts
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts Accounts, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

// HandleLogin returns the token of a registered credential.
//
// HTTP: POST /login
// REQUEST BODY: any non-empty JSON object, e.g. {"username":"bob","password":"pw"}
//
// 200 "OK" with the token as body; 404 "Could not retrieve user" if the
// credential was never registered.
func (h *AccountHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	cred, err := decodeCredential(w, r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	token, err := h.accounts.Login(r.Context(), cred)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, "OK", token)
}

// HandleRegister creates an account, or returns the existing one.
//
// HTTP: POST /register
//
// Registering the same credential twice is not an error: both calls answer
// 200 "Logged in!" with the same token.
func (h *AccountHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	cred, err := decodeCredential(w, r)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	res, err := h.accounts.Register(r.Context(), cred)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, "Logged in!", res.Token)
}

// HandleHealth pings the store.
//
// HTTP: GET /healthz
func (h *AccountHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		api.WriteError(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, "OK", nil)
}

// decodeCredential reads exactly one JSON object from the request body.
//
// Anything else (array, string, null, trailing data) is an invalid body.
// Numbers decode as json.Number so that no digit is lost before the
// identity key is derived.
func decodeCredential(w http.ResponseWriter, r *http.Request) (auth.Credential, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()

	var cred auth.Credential
	if err := dec.Decode(&cred); err != nil {
		return nil, apperror.InvalidBody(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, apperror.InvalidBody(errors.New("body must contain a single JSON object"))
	}
	if len(cred) == 0 {
		return nil, apperror.InvalidBody(errors.New("credential must be a non-empty object"))
	}
	return cred, nil
}
