// Contractd is the contract review daemon with an HTTP API.
//
// This binary starts the contractd HTTP server with full service
// initialization, including the Supabase client, the local store, NATS
// events and the analysis chain.
//
// Configuration is loaded from ~/.config/contractd/config.yaml and
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	contractd
//
//	# Configure via environment
//	SERVER_PORT=9090 SUPABASE_URL=https://project.supabase.co contractd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/config"
	httpserver "github.com/fyrsmithlabs/contractd/internal/http"
	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/services"
	"github.com/fyrsmithlabs/contractd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath = flag.String("config", "", "path to config.yaml (default ~/.config/contractd/config.yaml)")

func main() {
	flag.Parse()
	args := flag.Args()

	// Handle subcommands
	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  contractd           Start the contractd daemon\n")
			fmt.Fprintf(os.Stderr, "  contractd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithFile(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("contractd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the contractd server and blocks until ctx is cancelled.
//
// This function initializes all dependencies and services:
//  1. Initializes telemetry and the logger
//  2. Builds the service registry (Supabase, store, events, analysis, pipeline)
//  3. Starts the HTTP server
//  4. Performs graceful shutdown on context cancellation
func run(ctx context.Context, cfg *config.Config) error {
	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()
	tel.SetLoggerProvider(global.GetLoggerProvider())

	logger, err := initLogger(cfg, tel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info(ctx, "Starting contractd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("supabase_url", cfg.Supabase.URL),
		logging.Secret("supabase_key", cfg.Supabase.AnonKey),
		zap.Bool("store_enabled", cfg.Store.Enabled),
		zap.Bool("events_enabled", cfg.Events.Enabled),
		zap.Bool("telemetry_enabled", tel.IsEnabled()),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	reg, closeServices, err := services.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if err := closeServices(); err != nil {
			logger.Warn(context.Background(), "failed to close services", zap.Error(err))
		}
	}()

	logger.Info(ctx, "Services initialized",
		zap.Strings("models", reg.Analysis().Models(analysis.Request{})),
		zap.Bool("store_ready", reg.Store() != nil),
		zap.Bool("nats_connected", reg.NATS() != nil))

	srv, err := httpserver.NewServer(reg, logger, &httpserver.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		BodyLimit:         cfg.Server.BodyLimit,
		MaxDocumentSizeMB: cfg.Pipeline.MaxDocumentSizeMB,
		AuthTokens:        cfg.AuthTokens(),
		ServiceName:       cfg.Observability.ServiceName,
		Version:           version,
		Telemetry:         tel,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	logger.Info(ctx, "Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s:%d/health", cfg.Server.Host, cfg.Server.Port)),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"),
		zap.Bool("auth_enabled", len(cfg.AuthTokens()) > 0))

	// Blocks until ctx is cancelled
	return srv.Run(ctx)
}

// initLogger builds the structured logger, teeing into the OTEL log bridge
// when telemetry is enabled.
func initLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg, err := logging.FromObservability(cfg.Observability)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}
