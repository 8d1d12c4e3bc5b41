// Package config loads the server configuration.
//
// Values are layered, each layer overriding the one before:
//
//  1. defaults (Default)
//  2. an optional YAML file (--config or CONFIG_FILE)
//  3. environment variables
//  4. command-line flags
//
// The result is validated once at load time, so the rest of the program
// can trust it: the signing secret is long enough, the store driver is
// known, the log level parses.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// MinSecretLen is the minimum length of the token signing secret in bytes.
const MinSecretLen = 16

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds every runtime setting of the server.
type Config struct {
	Port int

	// StoreDriver selects the key-value backend: "sqlite" or "postgres".
	StoreDriver string
	// DBPath is the SQLite database file (sqlite driver).
	DBPath string
	// DatabaseDSN is the PostgreSQL connection string (postgres driver).
	DatabaseDSN string

	// JWTSecret signs and verifies tokens. If JWTSecretFile is set, the
	// secret is read from that file instead.
	JWTSecret     string
	JWTSecretFile string

	LogLevel string

	// GitHub sign-in is enabled only when both ID and secret are set.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Default returns the development defaults.
// No default signing secret exists: one must always be configured.
func Default() Config {
	return Config{
		Port:        8080,
		StoreDriver: DriverSQLite,
		DBPath:      "data/gat-accounts.db",
		LogLevel:    "info",
	}
}

// Load builds the configuration from defaults, the optional YAML file, the
// environment and args (command-line arguments without the program name).
//
// Returns pflag.ErrHelp unchanged when args ask for --help.
func Load(args []string) (*Config, error) {
	fl, err := parseFlags(args)
	if err != nil {
		return nil, err
	}

	cfg := Default()

	path := fl.configFile
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	fl.apply(&cfg)

	if err := cfg.resolveSecret(); err != nil {
		return nil, err
	}
	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("sqlite driver needs a database path"))
		}
	case DriverPostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("postgres driver needs a DATABASE_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.StoreDriver))
	}

	if len(c.JWTSecret) < MinSecretLen {
		errs = append(errs, fmt.Errorf("JWT secret must be at least %d bytes", MinSecretLen))
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GitHub sign-in needs both client ID and client secret"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// SlogLevel returns LogLevel as a slog.Level. Validate guarantees it parses.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// resolveSecret replaces JWTSecret with the contents of JWTSecretFile, if set.
// Surrounding whitespace (a trailing newline, typically) is trimmed.
func (c *Config) resolveSecret() error {
	if c.JWTSecretFile == "" {
		return nil
	}
	b, err := os.ReadFile(c.JWTSecretFile)
	if err != nil {
		return fmt.Errorf("config: reading JWT secret file: %w", err)
	}
	c.JWTSecret = strings.TrimSpace(string(b))
	return nil
}

// applyEnv overlays the environment variables that are set and non-empty.
func applyEnv(c *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}

	strs := []struct {
		env string
		dst *string
	}{
		{"STORE_DRIVER", &c.StoreDriver},
		{"DB_PATH", &c.DBPath},
		{"DATABASE_DSN", &c.DatabaseDSN},
		{"JWT_SECRET", &c.JWTSecret},
		{"JWT_SECRET_FILE", &c.JWTSecretFile},
		{"LOG_LEVEL", &c.LogLevel},
		{"GITHUB_CLIENT_ID", &c.GitHubClientID},
		{"GITHUB_CLIENT_SECRET", &c.GitHubClientSecret},
		{"GITHUB_CALLBACK_URL", &c.GitHubCallbackURL},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
