// Package http provides the contractd HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contractd/internal/document"
	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/services"
	"github.com/fyrsmithlabs/contractd/pkg/auth"
)

var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Server provides HTTP endpoints for contractd.
type Server struct {
	echo     *echo.Echo
	services services.Registry
	loader   *document.Loader
	logger   *logging.Logger
	config   *Config
	metrics  *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	// BodyLimit is an echo size string such as "30M". Empty disables the limit.
	BodyLimit string
	// MaxDocumentSizeMB bounds uploaded contracts.
	MaxDocumentSizeMB int
	// AuthTokens protect /api. None disables authentication.
	AuthTokens  []string
	ServiceName string
	Version     string
	// Telemetry reports exporter state on the status endpoint. Optional.
	Telemetry TelemetryStatus
}

// TelemetryStatus is implemented by *telemetry.Telemetry.
type TelemetryStatus interface {
	Status() string
}

// NewServer creates a new HTTP server.
func NewServer(reg services.Registry, logger *logging.Logger, cfg *Config) (*Server, error) {
	if reg == nil {
		return nil, fmt.Errorf("service registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "contractd"
	}
	logger = logger.Named("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	metrics := NewHTTPMetrics(logger)
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			// Client supplied ids are only carried into logs when well formed
			if requestID := c.Response().Header().Get(echo.HeaderXRequestID); requestIDPattern.MatchString(requestID) {
				ctx = logging.WithRequestID(ctx, requestID)
				c.SetRequest(c.Request().WithContext(ctx))
			}

			err := next(c)
			if err != nil {
				// Let echo write the response so the logged status is final
				c.Error(err)
			}

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:     e,
		services: reg,
		loader:   document.NewLoader(cfg.MaxDocumentSizeMB),
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API v1 routes
	v1 := s.echo.Group("/api/v1", auth.BearerAuthMiddleware(s.config.AuthTokens))
	v1.GET("/status", s.handleStatus)
	v1.POST("/reviews", s.handleReview)
	v1.GET("/reviews/:ingestionId/events", s.handleReviewEvents)
	v1.GET("/events", s.handleReviewEvents)
	v1.GET("/ingestions/:ingestionId", s.handleGetIngestion)
	v1.POST("/analyses", s.handleAnalyze)
	v1.GET("/analyses", s.handleListAnalyses)
	v1.GET("/analyses/:ingestionId", s.handleGetAnalysis)
}

// Handler exposes the router, e.g. for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down within the configured
// timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}
