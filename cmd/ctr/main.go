// Package main implements the ctr CLI for contract reviews.
//
// Most commands run the review pipeline in-process against the configured
// Supabase project. health and status talk to a running contractd server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/contractd/internal/config"
	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/services"
)

var (
	// serverURL is the base URL for the contractd HTTP server
	serverURL string
	// apiToken is sent as a bearer token to the server
	apiToken string
	// configPath overrides ~/.config/contractd/config.yaml
	configPath string
	verbose    bool
	// version information
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ctr",
	Short: "CLI for contract reviews",
	Long: `ctr runs contract reviews: ingestion, clause extraction and AI analysis.

Reviews run in-process using the contractd configuration. Use --workflow on
review to hand the work to a Temporal worker instead.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:9191", "contractd server URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("CONTRACTD_TOKEN"), "API token for the contractd server")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

// environment is what in-process commands need.
type environment struct {
	cfg      *config.Config
	logger   *logging.Logger
	services services.Registry
	close    func()
}

// loadEnvironment reads the configuration and builds the services. Logs go
// to stderr so stdout carries only results.
func loadEnvironment() (*environment, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := newCLILogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	reg, closeServices, err := services.Build(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &environment{
		cfg:      cfg,
		logger:   logger,
		services: reg,
		close: func() {
			_ = closeServices()
			_ = logger.Sync()
		},
	}, nil
}

func newCLILogger(cfg *config.Config) (*logging.Logger, error) {
	logCfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		return nil, err
	}
	logCfg.Format = "console"
	logCfg.Output.Stdout = false
	logCfg.Output.Stderr = true
	logCfg.Output.OTEL = false
	logCfg.Caller.Enabled = false
	logCfg.Level = zapcore.WarnLevel
	if verbose {
		logCfg.Level = zapcore.DebugLevel
	}
	return logging.NewLogger(logCfg, nil)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
