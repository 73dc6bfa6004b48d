package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/infrastructure/api"
	"github.com/helixml/diffsum/internal/config"
	"github.com/helixml/diffsum/internal/log"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API server.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. Per-user settings ($XDG_CONFIG_HOME/diffsum/env)
  3. .env file (--env-file, or .env in the current directory)
  4. Environment variables
  5. Command line flags

Environment variables:
  HOST                         Server host to bind to (default: 0.0.0.0)
  PORT                         Server port to listen on (default: 8080)
  DATA_DIR                     Data directory (default: ~/.diffsum)
  DB_URL                       Database URL (default: sqlite:///{data_dir}/diffsum.db)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, plain, json (default: pretty)
  API_KEYS                     Comma-separated keys required by POST /api/v1/summarize
  CORS_ALLOWED_ORIGINS         Comma-separated browser origins allowed to call the API
  ALLOW_LOCAL_REPOS            Allow summarize requests to name server-side repositories

  ENRICHMENT_ENDPOINT_*        Generation backend configuration
    PROVIDER                   openai or anthropic (default: openai)
    BASE_URL                   Base URL (e.g., https://api.openai.com/v1)
    MODEL                      Model identifier (e.g., gpt-4o)
    API_KEY                    API key for authentication
    MAX_TOKENS                 Declared context window of the model
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts, 0 disables retrying (default: 5)

  LAYERED_MODE_ENABLED         Summarize large diffs file by file (default: true)
  AUDIT_MAX_RECORDS            Audit log retention bound (default: 1000)
  AUDIT_PRUNE_INTERVAL_SECONDS Background retention sweep interval
  REPORTING_LOG_TIME_INTERVAL  Minimum seconds between streamed progress events`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(envFile, host, port)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Server host to bind to (default: 0.0.0.0)")
	cmd.Flags().IntVar(&port, "port", 0, "Server port to listen on (default: 8080)")

	return cmd
}

func runServe(envFile, host string, port int) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	// Flags take precedence over env vars
	cfg = applyServeOverrides(cfg, host, port)

	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logger := log.Configure(cfg)
	slogger := logger.Slog()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting diffsum", attrs...)

	client, err := newClient(cfg, slogger, diffsum.WithAuditPruneInterval(cfg.AuditPruneInterval()))
	if err != nil {
		return fmt.Errorf("create diffsum client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slogger.Error("failed to close diffsum client", slog.Any("error", err))
		}
	}()

	apiServer := api.NewAPIServer(client, cfg.APIKeys(),
		api.WithCORSOrigins(cfg.CORSOrigins()...),
		api.WithLocalRepos(cfg.AllowLocalRepos()),
		api.WithProgressInterval(cfg.ReportingInterval()),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		<-sigChan
		slogger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			slogger.Error("shutdown error", slog.Any("error", err))
		}
	}()

	if err := apiServer.ListenAndServe(cfg.Addr()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg config.AppConfig, host string, port int) config.AppConfig {
	var opts []config.AppConfigOption

	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithPort(port))
	}

	return cfg.Apply(opts...)
}
