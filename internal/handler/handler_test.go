package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/sakif/gat-accounts/internal/apperror"
	"github.com/sakif/gat-accounts/internal/auth"
	"github.com/sakif/gat-accounts/internal/model"
	"github.com/sakif/gat-accounts/internal/service"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// MockAccounts implements handler.Accounts without a store.
type MockAccounts struct {
	CapturedCred auth.Credential
	CapturedGH   *auth.GitHubUser
	Token        string
	Created      bool
	ReturnErr    error
	PingErr      error
}

func (m *MockAccounts) Login(_ context.Context, cred auth.Credential) (string, error) {
	m.CapturedCred = cred
	if m.ReturnErr != nil {
		return "", m.ReturnErr
	}
	return m.Token, nil
}

func (m *MockAccounts) Register(_ context.Context, cred auth.Credential) (*service.RegisterResult, error) {
	m.CapturedCred = cred
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return &service.RegisterResult{Token: m.Token, Created: m.Created}, nil
}

func (m *MockAccounts) LoginOrRegisterGitHub(_ context.Context, gh *auth.GitHubUser) (*service.RegisterResult, error) {
	m.CapturedGH = gh
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return &service.RegisterResult{Token: m.Token, Created: m.Created}, nil
}

func (m *MockAccounts) Ping(context.Context) error { return m.PingErr }

// MockCollections implements handler.Collections in memory.
type MockCollections struct {
	CapturedNS   model.Namespace
	CapturedID   auth.Identity
	CapturedBody []byte
	Stored       json.RawMessage
	ReturnErr    error
}

func (m *MockCollections) Get(_ context.Context, ns model.Namespace, id auth.Identity) (json.RawMessage, error) {
	m.CapturedNS, m.CapturedID = ns, id
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	if m.Stored == nil {
		return nil, apperror.NotFound(string(ns), id.Token)
	}
	return m.Stored, nil
}

func (m *MockCollections) Put(_ context.Context, ns model.Namespace, id auth.Identity, body []byte) error {
	m.CapturedNS, m.CapturedID, m.CapturedBody = ns, id, body
	return m.ReturnErr
}

// envelope mirrors api.Envelope with a raw body for assertions.
type envelope struct {
	Message string          `json:"message"`
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body"`
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	require.Equal(t, rr.Code, env.Status, "envelope status must mirror the HTTP status")
	return env
}
