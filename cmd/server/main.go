// Command ragd serves the retrieval-augmented chat API and offers offline
// ingestion and token tooling against the same configuration.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gwi.com/rag-orchestrator/internal/app"
	"gwi.com/rag-orchestrator/internal/config"
	"gwi.com/rag-orchestrator/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "ragd",
	Short:         "Retrieval-augmented chat service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML or YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadApp reads configuration and builds the application from it.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, logging.New(cfg.Logging))
}
