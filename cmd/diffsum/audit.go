package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/application/service"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
	"github.com/helixml/diffsum/internal/log"
)

func auditCmd() *cobra.Command {
	var (
		envFile string
		params  service.AuditSearchParams
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Print recorded backend exchanges as JSON",
		Long: `Print recorded backend exchanges as JSON.

With --session or --repo and no --limit, matching records are printed oldest
first. A limit prints the newest records first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd.Context(), cmd.OutOrStdout(), envFile, params)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&params.SessionID, "session", "", "Only records of this session")
	cmd.Flags().StringVar(&params.RepoPath, "repo", "", "Only records tagged with this repository path")
	cmd.Flags().IntVar(&params.Limit, "limit", 20, "Maximum number of records, newest first (0 for all)")

	return cmd
}

func runAudit(ctx context.Context, stdout io.Writer, envFile string, params service.AuditSearchParams) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if params.Limit < 0 {
		return errors.New("limit must not be negative")
	}

	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	logger := log.NewLogger(cfg).Slog()

	client, err := newClient(cfg, logger, diffsum.WithoutProvider())
	if err != nil {
		return fmt.Errorf("create diffsum client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close diffsum client", slog.Any("error", err))
		}
	}()

	records, err := client.Audit.Search(ctx, params)
	if err != nil {
		return fmt.Errorf("search audit log: %w", err)
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dto.NewAuditListResponse(records))
}
