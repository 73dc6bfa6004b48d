package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
	"github.com/helixml/diffsum/internal/log"
)

func estimateCmd() *cobra.Command {
	var (
		envFile string
		file    string
		model   string
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate the token size of a diff",
		Long: `Estimate the token size of a diff and report whether it would be
summarized in layers. The diff is read from --file or stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEstimate(cmd.InOrStdin(), cmd.OutOrStdout(), envFile, file, model)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&file, "file", "-", "Diff file to size, or - for stdin")
	cmd.Flags().StringVar(&model, "model", "", "Model to size against (default: ENRICHMENT_ENDPOINT_MODEL)")

	return cmd
}

func runEstimate(stdin io.Reader, stdout io.Writer, envFile, file, model string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	logger := log.NewLogger(cfg).Slog()

	text, err := readPatch(stdin, file)
	if err != nil {
		return err
	}

	client, err := newClient(cfg, logger, diffsum.WithoutProvider())
	if err != nil {
		return fmt.Errorf("create diffsum client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close diffsum client", slog.Any("error", err))
		}
	}()

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(dto.NewEstimateResponse(client.Estimate(text, model)))
}
