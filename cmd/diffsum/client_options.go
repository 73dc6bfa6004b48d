package main

import (
	"log/slog"
	"strings"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/internal/config"
)

// clientOptions returns the diffsum.Option slice derived from the shared
// parts of AppConfig. Callers append entrypoint-specific options before
// passing the full slice to diffsum.New.
func clientOptions(cfg config.AppConfig, logger *slog.Logger) []diffsum.Option {
	opts := []diffsum.Option{
		diffsum.WithAppConfig(cfg),
		diffsum.WithLogger(logger),
	}
	return append(opts, storageOptions(cfg)...)
}

// storageOptions returns the diffsum.Option for the configured database backend.
func storageOptions(cfg config.AppConfig) []diffsum.Option {
	dbURL := cfg.DBURL()

	if dbURL != "" && !isSQLite(dbURL) {
		return []diffsum.Option{diffsum.WithPostgres(dbURL)}
	}

	dbPath := cfg.DataDir() + "/" + config.DefaultDBFile
	if dbURL != "" {
		dbPath = strings.TrimPrefix(dbURL, "sqlite:///")
		if dbPath == dbURL {
			dbPath = strings.TrimPrefix(dbURL, "sqlite:")
		}
	}

	return []diffsum.Option{diffsum.WithSQLite(dbPath)}
}

// isSQLite checks if the database URL is for SQLite.
func isSQLite(url string) bool {
	return strings.HasPrefix(url, "sqlite:")
}

// newClient loads the client described by cfg plus extra options.
func newClient(cfg config.AppConfig, logger *slog.Logger, extra ...diffsum.Option) (*diffsum.Client, error) {
	return diffsum.New(append(clientOptions(cfg, logger), extra...)...)
}
