package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/gat-accounts/internal/api"
	"github.com/sakif/gat-accounts/internal/apperror"
	"github.com/sakif/gat-accounts/internal/auth"
)

// stateCookie holds the CSRF state between login and callback.
const stateCookie = "oauth_state"

// GitHubAuthenticator performs the OAuth code exchange.
// *auth.GitHubProvider implements it.
type GitHubAuthenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// GitHubHandler manages sign-in with GitHub.
//
// It is an alternative to POST /register: instead of the client choosing a
// credential, the credential is built from the verified GitHub profile.
// The callback answers with the same envelope as /register, so clients
// store the token the same way.
type GitHubHandler struct {
	github   GitHubAuthenticator
	accounts Accounts
	logger   *slog.Logger
}

// NewGitHubHandler creates a GitHubHandler.
func NewGitHubHandler(github GitHubAuthenticator, accounts Accounts, logger *slog.Logger) *GitHubHandler {
	return &GitHubHandler{github: github, accounts: accounts, logger: logger}
}

// HandleLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes both into a short-lived HttpOnly cookie and
// into the authorization URL. The callback only proceeds if the two match,
// which proves the flow was started by this browser.
func (h *GitHubHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter against the cookie
//  2. Exchange the code for the GitHub profile
//  3. Register (or find) the account for that profile
//  4. Answer 200 "Logged in!" with the token
func (h *GitHubHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("github callback: missing state cookie")
		api.WriteError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("github callback: state mismatch")
		api.WriteError(w, apperror.ValidationFailed("state", "invalid OAuth state"))
		return
	}

	// The state is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("github callback: user denied authorization", slog.String("error", errParam))
		api.WriteError(w, apperror.Unauthorized(nil))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		api.WriteError(w, apperror.ValidationFailed("code", "missing OAuth code"))
		return
	}

	// --- Step 2: Exchange code for the GitHub profile ---
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("github callback: exchange failed", slog.String("error", err.Error()))
		api.WriteError(w, &apperror.AppError{
			Err:     apperror.ErrUpstream,
			Message: "GitHub authentication failed",
			Cause:   err,
		})
		return
	}

	// --- Step 3: Register or find the account ---
	res, err := h.accounts.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		api.WriteError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, "Logged in!", res.Token)
}
