package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/gat-accounts/internal/auth"
	"github.com/sakif/gat-accounts/internal/config"
	sqliteRepo "github.com/sakif/gat-accounts/internal/repository/sqlite"
	"github.com/sakif/gat-accounts/internal/service"
)

type envelope struct {
	Message string          `json:"message"`
	Status  int             `json:"status"`
	Body    json.RawMessage `json:"body"`
}

// newTestServer runs the full router over an in-memory SQLite store.
func newTestServer(t *testing.T, mutate ...func(*config.Config)) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.JWTSecret = "integration-test-secret"
	for _, m := range mutate {
		m(&cfg)
	}

	store, err := sqliteRepo.New(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewWithStore(&cfg, store, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, token, body string) (*http.Response, envelope) {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", token)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &env), "body: %s", raw)
		assert.Equal(t, resp.StatusCode, env.Status)
	} else {
		env.Message = string(raw)
	}
	return resp, env
}

func tokenOf(t *testing.T, env envelope) string {
	t.Helper()
	var token string
	require.NoError(t, json.Unmarshal(env.Body, &token))
	require.NotEmpty(t, token)
	return token
}

func TestEndToEnd_RegisterAndFavorites(t *testing.T) {
	ts := newTestServer(t)
	cred := `{"username":"alice","password":"pw"}`

	resp, env := do(t, ts, http.MethodPost, "/register", "", cred)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged in!", env.Message)
	token := tokenOf(t, env)

	// Registering again returns the very same token.
	resp, env = do(t, ts, http.MethodPost, "/register", "", cred)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, token, tokenOf(t, env))

	// Fresh account: collections exist but are empty.
	resp, env = do(t, ts, http.MethodGet, "/favorites", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not found", env.Message)
	assert.JSONEq(t, `[]`, string(env.Body))

	resp, env = do(t, ts, http.MethodPost, "/favorites", token, `[{"id":1}]`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Favorites updated!", env.Message)

	resp, env = do(t, ts, http.MethodGet, "/favorites", token, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", env.Message)
	assert.JSONEq(t, `[{"id":1}]`, string(env.Body))

	// Inventory is a separate collection.
	resp, _ = do(t, ts, http.MethodGet, "/inventory", token, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Login with the same credential, keys in another order.
	resp, env = do(t, ts, http.MethodPost, "/login", "", `{"password":"pw","username":"alice"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", env.Message)
	assert.Equal(t, token, tokenOf(t, env))

	// Re-registering must not clobber the favorites.
	do(t, ts, http.MethodPost, "/register", "", cred)
	_, env = do(t, ts, http.MethodGet, "/favorites", token, "")
	assert.JSONEq(t, `[{"id":1}]`, string(env.Body))
}

func TestEndToEnd_BearerPrefix(t *testing.T) {
	ts := newTestServer(t)

	_, env := do(t, ts, http.MethodPost, "/register", "", `{"u":"bob"}`)
	token := tokenOf(t, env)

	resp, _ := do(t, ts, http.MethodPost, "/inventory", "Bearer "+token, `{"gold":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, env = do(t, ts, http.MethodGet, "/inventory", token, "")
	assert.JSONEq(t, `{"gold":10}`, string(env.Body))
}

func TestEndToEnd_LargeIntegerCredentials(t *testing.T) {
	ts := newTestServer(t)

	resp, env := do(t, ts, http.MethodPost, "/register", "", `{"name":"alice","pin":9007199254740993}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := tokenOf(t, env)

	resp, env = do(t, ts, http.MethodPost, "/login", "", `{"name":"alice","pin":9007199254740992}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Could not retrieve user", env.Message)

	resp, env = do(t, ts, http.MethodPost, "/login", "", `{"pin":9007199254740993.0,"name":"alice"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, token, tokenOf(t, env))
}

func TestGitHubAccountIsolation(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.JWTSecret = "integration-test-secret"

	store, err := sqliteRepo.New(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewWithStore(&cfg, store, logger)
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	// What the OAuth callback does once GitHub vouches for the user.
	accounts := service.NewAccountService(store, s.tokens, logger)
	gh, err := accounts.LoginOrRegisterGitHub(context.Background(), &auth.GitHubUser{ID: 583231, Login: "octocat"})
	require.NoError(t, err)

	resp, _ := do(t, ts, http.MethodPost, "/favorites", gh.Token, `["mine"]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Anyone can read the public profile and type it in.
	mirror := `{"provider":"github","github_id":583231,"login":"octocat"}`
	for _, path := range []string{"/login", "/register"} {
		resp, env := do(t, ts, http.MethodPost, path, "", mirror)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Equal(t, "Invalid body", env.Message, path)
		assert.NotContains(t, string(env.Body), gh.Token, path)
	}

	// Without the provider field it is a separate account.
	_, env := do(t, ts, http.MethodPost, "/register", "", `{"github_id":583231,"login":"octocat"}`)
	other := tokenOf(t, env)
	assert.NotEqual(t, gh.Token, other)

	resp, env = do(t, ts, http.MethodGet, "/favorites", other, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(env.Body))

	_, env = do(t, ts, http.MethodGet, "/favorites", gh.Token, "")
	assert.JSONEq(t, `["mine"]`, string(env.Body))
}

func TestLogin_Unregistered(t *testing.T) {
	ts := newTestServer(t)

	resp, env := do(t, ts, http.MethodPost, "/login", "", `{"username":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Could not retrieve user", env.Message)
}

func TestInvalidBodies(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/login", "/register"} {
		resp, env := do(t, ts, http.MethodPost, path, "", `not json`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
		assert.Equal(t, "Invalid body", env.Message, path)
	}

	_, env := do(t, ts, http.MethodPost, "/register", "", `{"u":"carol"}`)
	token := tokenOf(t, env)

	resp, env := do(t, ts, http.MethodPost, "/favorites", token, `null`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid body", env.Message)
}

func TestAuthGate(t *testing.T) {
	ts := newTestServer(t)

	_, env := do(t, ts, http.MethodPost, "/register", "", `{"u":"dave"}`)
	token := tokenOf(t, env)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"missing", "", http.StatusBadRequest},
		{"garbage", "garbage", http.StatusUnauthorized},
		{"tampered", tamper(token), http.StatusUnauthorized},
		{"foreign secret", foreignToken(t), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/favorites", "/inventory"} {
				resp, _ := do(t, ts, http.MethodGet, path, tt.token, "")
				assert.Equal(t, tt.status, resp.StatusCode, path)
			}
		})
	}
}

// tamper changes one character in the middle of the signature segment.
func tamper(token string) string {
	i := len(token) - 5
	c := byte('A')
	if token[i] == c {
		c = 'B'
	}
	return token[:i] + string(c) + token[i+1:]
}

// foreignToken is a well-formed token signed by a different deployment.
func foreignToken(t *testing.T) string {
	t.Helper()
	other := newTestServer(t, func(c *config.Config) { c.JWTSecret = "some-other-deployment-secret" })
	_, env := do(t, other, http.MethodPost, "/register", "", `{"u":"dave"}`)
	return tokenOf(t, env)
}

func TestCORSAndPreflight(t *testing.T) {
	ts := newTestServer(t)

	resp, env := do(t, ts, http.MethodOptions, "/no/such/route", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", env.Message)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, _ = do(t, ts, http.MethodGet, "/favorites", "", "")
	assert.Equal(t, "GET, OPTIONS, POST", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "application/json;charset=UTF-8", resp.Header.Get("Content-Type"))
}

func TestFallbacks(t *testing.T) {
	ts := newTestServer(t)

	resp, env := do(t, ts, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Not found", env.Message)

	resp, env = do(t, ts, http.MethodDelete, "/favorites", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "Method not allowed", env.Message)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, env := do(t, ts, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", env.Message)
}

func TestGitHubRoutes(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t)

		resp, _ := do(t, ts, http.MethodGet, "/auth/github/login", "", "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("enabled", func(t *testing.T) {
		ts := newTestServer(t, func(c *config.Config) {
			c.GitHubClientID = "id"
			c.GitHubClientSecret = "secret"
			c.GitHubCallbackURL = "http://localhost/auth/github/callback"
		})
		client := ts.Client()
		client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

		resp, err := client.Get(ts.URL + "/auth/github/login")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
		assert.Contains(t, resp.Header.Get("Location"), "github.com/login/oauth/authorize")
	})
}
