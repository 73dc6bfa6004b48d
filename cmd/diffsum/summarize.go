package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/helixml/diffsum"
	"github.com/helixml/diffsum/domain/change"
	"github.com/helixml/diffsum/domain/pipeline"
	"github.com/helixml/diffsum/infrastructure/api/v1/dto"
	"github.com/helixml/diffsum/infrastructure/git"
	"github.com/helixml/diffsum/infrastructure/tracking"
	"github.com/helixml/diffsum/internal/config"
	"github.com/helixml/diffsum/internal/log"
)

type summarizeFlags struct {
	envFile    string
	repo       string
	rev        string
	patch      string
	branch     string
	templateID string
	language   string
	model      string
	layered    bool
	asJSON     bool
}

func summarizeCmd() *cobra.Command {
	var f summarizeFlags

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Write a commit message for a commit or patch",
		Long: `Write a commit message for a commit or a patch.

By default the HEAD commit of the repository in the current directory is
summarized. Use --patch to summarize a unified diff instead ("-" reads stdin).

The message is printed to stdout. Progress and diagnostics go to stderr.
When generation fails, a message built from the diff statistics is printed
instead.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummarize(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().StringVar(&f.envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&f.repo, "repo", ".", "Repository to read the commit from")
	cmd.Flags().StringVar(&f.rev, "rev", "", "Revision to summarize (default: HEAD)")
	cmd.Flags().StringVar(&f.patch, "patch", "", "Unified diff file to summarize, or - for stdin")
	cmd.Flags().StringVar(&f.branch, "branch", "", "Branch hint for the message (default: current branch)")
	cmd.Flags().StringVar(&f.templateID, "template", "", "Commit message template")
	cmd.Flags().StringVar(&f.language, "language", "", "Language of the commit message")
	cmd.Flags().StringVar(&f.model, "model", "", "Model to generate with (default: ENRICHMENT_ENDPOINT_MODEL)")
	cmd.Flags().BoolVar(&f.layered, "layered", false, "Summarize file by file even when the diff fits the model")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "Print the full result as JSON")

	return cmd
}

func runSummarize(ctx context.Context, stdin io.Reader, stdout io.Writer, f summarizeFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(f.envFile)
	if err != nil {
		return err
	}
	cfg = applySummarizeOverrides(cfg, f)

	logger := log.NewLogger(cfg).Slog()

	units, branch, repoPath, err := readUnits(ctx, stdin, f, logger)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return errors.New("no changes to summarize")
	}
	if f.branch != "" {
		branch = f.branch
	}

	var extra []diffsum.Option
	if f.model != "" {
		extra = append(extra, diffsum.WithModel(f.model))
	}
	client, err := newClient(cfg, logger, extra...)
	if err != nil {
		return fmt.Errorf("create diffsum client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close diffsum client", slog.Any("error", err))
		}
	}()

	throttle := tracking.NewThrottle(tracking.NewLoggingObserver(logger), cfg.ReportingInterval())
	out, err := client.Summarize(ctx, diffsum.SummarizeRequest{
		Units:        units,
		BranchHint:   branch,
		RepoPath:     repoPath,
		ForceLayered: f.layered,
	}, throttle)
	_ = throttle.Close()

	if err != nil {
		if errors.Is(err, pipeline.ErrCancelled) {
			return err
		}
		logger.Warn("summarization failed, using fallback message", slog.Any("error", err))
		_, werr := fmt.Fprintln(stdout, diffsum.Fallback(units))
		return werr
	}

	if f.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dto.NewSummarizeResponse(out))
	}
	_, err = fmt.Fprintln(stdout, out.Message)
	return err
}

// readUnits loads the change from the patch flag, or from the repository
// commit when no patch is given.
func readUnits(ctx context.Context, stdin io.Reader, f summarizeFlags, logger *slog.Logger) ([]change.Unit, string, string, error) {
	if f.patch != "" {
		text, err := readPatch(stdin, f.patch)
		if err != nil {
			return nil, "", "", err
		}
		units, err := git.Units(ctx, git.ParsePatch(text))
		return units, "", "", err
	}

	commit, err := git.OpenCommit(ctx, f.repo, f.rev, logger)
	if err != nil {
		return nil, "", "", err
	}
	units, err := git.Units(ctx, commit)
	return units, commit.Branch(), commit.RepoPath(), err
}

func readPatch(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read patch from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read patch: %w", err)
	}
	return string(b), nil
}

// applySummarizeOverrides applies command line flag overrides to the config.
func applySummarizeOverrides(cfg config.AppConfig, f summarizeFlags) config.AppConfig {
	var opts []config.AppConfigOption

	if f.templateID != "" {
		opts = append(opts, config.WithTemplateID(f.templateID))
	}
	if f.language != "" {
		opts = append(opts, config.WithLanguage(f.language))
	}
	if f.layered {
		opts = append(opts, config.WithLayeredModeEnabled(true))
	}

	return cfg.Apply(opts...)
}
