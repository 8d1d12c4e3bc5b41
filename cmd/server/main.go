// Package main is the entry point of the gat-accounts server.
//
// main only wires things together: load the configuration, build the
// logger, create the server and run it. Everything else lives in
// internal/ so it can be tested without starting a process.
//
// Typical runs:
//
//	JWT_SECRET=$(openssl rand -hex 32) go run ./cmd/server
//	go run ./cmd/server --config gat.yaml --log-level debug
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/sakif/gat-accounts/internal/config"
	"github.com/sakif/gat-accounts/internal/server"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(2)
	}

	// Text logs on stdout; the level comes from LOG_LEVEL / --log-level.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
