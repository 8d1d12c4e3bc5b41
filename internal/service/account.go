// Package service holds the business logic of the accounts API.
//
// Services sit between the HTTP handlers and the store:
//
//	AccountHandler (HTTP) → AccountService (rules) → repository.Store
//	                      ↘ auth.TokenService (tokens)
//
// They never read requests or write responses. Every error they return is
// an apperror category, so the HTTP layer can map it without knowing
// which backend or helper produced it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/gat-accounts/internal/apperror"
	"github.com/sakif/gat-accounts/internal/auth"
	"github.com/sakif/gat-accounts/internal/model"
	"github.com/sakif/gat-accounts/internal/repository"
)

// emptyCollection is the initial value of both per-user collections.
const emptyCollection = "[]"

// AccountService registers users and looks up their tokens.
type AccountService struct {
	store  repository.Store
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(store repository.Store, tokens *auth.TokenService, logger *slog.Logger) *AccountService {
	return &AccountService{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

// RegisterResult is returned by Register.
//
// Created is false when the credential was already registered and the
// stored token was returned unchanged.
type RegisterResult struct {
	Token   string
	Key     auth.IdentityKey
	Created bool
}

// Login returns the token previously issued for cred.
//
// ERRORS:
//   - empty or unencodable credential → apperror.ErrValidation
//   - no account for cred             → apperror.ErrNotFound ("Could not retrieve user")
//   - store failure                   → apperror.ErrUpstream
func (s *AccountService) Login(ctx context.Context, cred auth.Credential) (string, error) {
	key, err := userIdentityOf(cred)
	if err != nil {
		return "", err
	}

	entry, err := s.store.Get(ctx, model.Accounts, string(key))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", &apperror.AppError{
				Err:     apperror.ErrNotFound,
				Message: "Could not retrieve user",
				Cause:   err,
			}
		}
		s.logger.Error("account lookup failed",
			slog.String("identityKey", string(key)),
			slog.String("error", err.Error()),
		)
		return "", apperror.Upstream("login", err)
	}

	return entry.Value, nil
}

// Register creates an account for cred, or returns the existing one.
//
// A new account is written together with its two empty collections in a
// single batch. Every write in the batch is insert-only, so a concurrent
// registration of the same credential never overwrites collections the
// user has already filled. Both registrations issue the same token, so
// whichever account write lands first is the one both callers agree on.
//
// cred comes from a client, so it may not carry auth.ProviderField.
func (s *AccountService) Register(ctx context.Context, cred auth.Credential) (*RegisterResult, error) {
	key, err := userIdentityOf(cred)
	if err != nil {
		return nil, err
	}
	return s.register(ctx, cred, key)
}

func (s *AccountService) register(ctx context.Context, cred auth.Credential, key auth.IdentityKey) (*RegisterResult, error) {
	existing, err := s.store.Get(ctx, model.Accounts, string(key))
	switch {
	case err == nil:
		return &RegisterResult{Token: existing.Value, Key: key}, nil
	case !errors.Is(err, apperror.ErrNotFound):
		s.logger.Error("account lookup failed",
			slog.String("identityKey", string(key)),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("register", err)
	}

	token, err := s.tokens.Issue(cred)
	if err != nil {
		// identityOf already canonicalized cred, so this is not a client error.
		return nil, fmt.Errorf("service/account: issuing token: %w", err)
	}

	err = s.store.PutMany(ctx,
		model.Write{Namespace: model.Accounts, Key: string(key), Value: token, IfAbsent: true},
		model.Write{Namespace: model.Inventory, Key: token, Value: emptyCollection, Metadata: string(key), IfAbsent: true},
		model.Write{Namespace: model.Favorites, Key: token, Value: emptyCollection, Metadata: string(key), IfAbsent: true},
	)
	if err != nil {
		s.logger.Error("registration write failed",
			slog.String("identityKey", string(key)),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Upstream("register", err)
	}

	s.logger.Info("account registered", slog.String("identityKey", string(key)))

	return &RegisterResult{Token: token, Key: key, Created: true}, nil
}

// LoginOrRegisterGitHub registers the account of a GitHub user, or returns
// the existing one.
//
// The credential is built only from the stable GitHub ID and login, so the
// same GitHub account always maps to the same IdentityKey and token. A
// renamed GitHub login yields a new account. It carries auth.ProviderField,
// which Register and Login refuse, so no typed credential can reach it.
func (s *AccountService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*RegisterResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/account: GitHub user must not be nil")
	}

	cred := ghUser.Credential()
	key, err := identityOf(cred)
	if err != nil {
		return nil, err
	}

	res, err := s.register(ctx, cred, key)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via GitHub",
		slog.Int64("githubID", ghUser.ID),
		slog.String("login", ghUser.Login),
		slog.Bool("created", res.Created),
	)
	return res, nil
}

// Ping reports whether the store is reachable.
func (s *AccountService) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return apperror.Upstream("health check", err)
	}
	return nil
}

// userIdentityOf is identityOf for credentials submitted by clients.
func userIdentityOf(cred auth.Credential) (auth.IdentityKey, error) {
	if _, reserved := cred[auth.ProviderField]; reserved {
		return "", apperror.InvalidBody(fmt.Errorf("field %q is reserved", auth.ProviderField))
	}
	return identityOf(cred)
}

// identityOf validates cred and derives its IdentityKey.
func identityOf(cred auth.Credential) (auth.IdentityKey, error) {
	if len(cred) == 0 {
		return "", apperror.InvalidBody(errors.New("credential must be a non-empty object"))
	}

	key, err := auth.DeriveKey(cred)
	if err != nil {
		return "", apperror.InvalidBody(err)
	}
	return key, nil
}
