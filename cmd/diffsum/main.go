// Package main is the entry point for the diffsum CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixml/diffsum/internal/config"
)

// Version information set via ldflags during build.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diffsum",
		Short: "Commit message generator",
		Long: `diffsum writes commit messages for changes of any size. Changes too large
for the model's context window are summarized file by file and the summaries
combined into one message.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		summarizeCmd(),
		estimateCmd(),
		auditCmd(),
		serveCmd(),
		stdioCmd(),
		versionCmd(),
	)

	return cmd
}

// loadConfig reads configuration from dotenv files and the environment.
func loadConfig(envFile string) (config.AppConfig, error) {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return config.AppConfig{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
