// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the composition root: it opens the store, builds the
// token service, the services and the handlers, and decides which URL
// patterns map to which handler and which middleware runs where.
//
// DEPENDENCY FLOW:
//
//	config.Config → repository.Store (sqlite | postgres)
//	             → auth.TokenService
//	Store + TokenService → AccountService, CollectionService → handlers
//
// Keeping this out of main.go makes the whole server testable: tests build
// one around an in-memory store and drive it with httptest.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/gat-accounts/internal/api"
	"github.com/sakif/gat-accounts/internal/auth"
	"github.com/sakif/gat-accounts/internal/config"
	"github.com/sakif/gat-accounts/internal/handler"
	"github.com/sakif/gat-accounts/internal/middleware"
	"github.com/sakif/gat-accounts/internal/repository"
	"github.com/sakif/gat-accounts/internal/repository/postgres"
	sqliteRepo "github.com/sakif/gat-accounts/internal/repository/sqlite"
	"github.com/sakif/gat-accounts/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// The Server owns the store: Start closes it on shutdown.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	tokens *auth.TokenService
}

// New opens the configured store and builds a Server around it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a Server around an already opened store.
func NewWithStore(cfg *config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
		tokens: tokens,
	}
	s.setupRoutes()
	return s, nil
}

// OpenStore opens the backend selected by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		if cfg.DBPath != ":memory:" {
			// Create the data directory on first run, like `mkdir -p`.
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil

	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	OPTIONS *                    → 200 "OK" (CORS preflight)
//	POST    /register            → create or find account, returns token
//	POST    /login               → find account, returns token
//	GET     /healthz             → store ping
//	GET     /inventory           → caller's inventory        [auth]
//	POST    /inventory           → replace inventory         [auth]
//	GET     /favorites           → caller's favorites        [auth]
//	POST    /favorites           → replace favorites         [auth]
//	GET     /auth/github/login   → redirect to GitHub        [if configured]
//	GET     /auth/github/callback→ register via GitHub       [if configured]
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: assigns the id the logger prints
//  2. RealIP: client IP from proxy headers
//  3. Logger: one line per request, including preflights
//  4. Recoverer: a panic becomes a 500 instead of a crash
//  5. CORS: headers on every response; answers OPTIONS before routing
func (s *Server) setupRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	accountService := service.NewAccountService(s.store, s.tokens, s.logger)
	collectionService := service.NewCollectionService(s.store, s.logger)

	accounts := handler.NewAccountHandler(accountService, s.logger)
	inventory := handler.NewInventoryHandler(collectionService, s.logger)
	favorites := handler.NewFavoritesHandler(collectionService, s.logger)

	// === Public routes ===
	r.Post("/register", accounts.HandleRegister)
	r.Post("/login", accounts.HandleLogin)
	r.Get("/healthz", accounts.HandleHealth)

	// === Protected routes ===
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(s.tokens, s.logger))

		r.Get("/inventory", inventory.HandleGet)
		r.Post("/inventory", inventory.HandlePost)
		r.Get("/favorites", favorites.HandleGet)
		r.Post("/favorites", favorites.HandlePost)
	})

	// === GitHub sign-in (optional) ===
	if s.config.GitHubEnabled() {
		provider := auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
		gh := handler.NewGitHubHandler(provider, accountService, s.logger)

		r.Get("/auth/github/login", gh.HandleLogin)
		r.Get("/auth/github/callback", gh.HandleCallback)
	} else {
		s.logger.Info("GitHub sign-in disabled (GITHUB_CLIENT_ID / GITHUB_CLIENT_SECRET not set)")
	}
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully:
//  1. stop accepting new connections
//  2. wait up to 30s for in-flight requests
//  3. close the store
func (s *Server) Start() error {
	defer func() {
		if err := s.store.Close(); err != nil {
			s.logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("store", s.config.StoreDriver),
			slog.Bool("github", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
