// Package analysis orchestrates contract analysis: bounded retries with
// exponential backoff per model, fallback across models and a direct LLM
// provider, and finally a locally generated fallback analysis. Responses
// are normalized into one Result shape.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/supabase"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/contractd/internal/analysis"

// ErrCacheMiss is returned by Cache.Get when nothing is stored.
var ErrCacheMiss = errors.New("analysis not cached")

// Config controls the attempt plan.
type Config struct {
	DefaultModel    string
	FallbackModels  []string
	ReviewType      string
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	FallbackEnabled bool
	// DeadlineReserve is cut from a caller deadline before the attempt
	// plan runs, so the fallback can still be returned in time.
	DeadlineReserve time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		DefaultModel:    "openai-gpt-5-nano",
		FallbackModels:  []string{"openai-gpt-5-mini"},
		ReviewType:      DefaultReviewType,
		MaxAttempts:     3,
		BaseBackoff:     time.Second,
		MaxBackoff:      8 * time.Second,
		FallbackEnabled: true,
		DeadlineReserve: DefaultDeadlineReserve,
	}
}

// DefaultDeadlineReserve covers the fallback, the cache write and the
// status update that follow an exhausted plan.
const DefaultDeadlineReserve = 15 * time.Second

// Options wires the service dependencies. Edge is required.
type Options struct {
	Edge   Backend
	Direct Backend
	// DirectModel labels the direct step. Defaults to the model of a
	// *DirectBackend.
	DirectModel string
	Cache       Cache
	Logger      *logging.Logger
	Metrics     *Metrics
}

// Service runs analyses.
type Service struct {
	config  *Config
	edge    Backend
	direct  Backend
	model   string // direct model
	cache   Cache
	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// NewService creates the analysis service.
func NewService(cfg *Config, opts Options) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if opts.Edge == nil {
		return nil, errors.New("edge backend is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1, got %d", cfg.MaxAttempts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	s := &Service{
		config:  cfg,
		edge:    opts.Edge,
		cache:   opts.Cache,
		logger:  opts.Logger.Named("analysis"),
		metrics: opts.Metrics,
		tracer:  otel.Tracer(instrumentationName),
	}
	if opts.Direct != nil {
		s.direct = opts.Direct
		s.model = opts.DirectModel
		if d, ok := opts.Direct.(*DirectBackend); ok && s.model == "" {
			s.model = d.Model()
		}
	}
	return s, nil
}

type step struct {
	backend Backend
	model   string
}

// plan returns the ordered backend/model steps for req.
func (s *Service) plan(req Request) []step {
	first := req.Model
	if first == "" {
		first = s.config.DefaultModel
	}

	seen := make(map[string]bool)
	var steps []step
	for _, m := range append([]string{first}, s.config.FallbackModels...) {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		steps = append(steps, step{backend: s.edge, model: m})
	}
	if s.direct != nil {
		steps = append(steps, step{backend: s.direct, model: s.model})
	}
	return steps
}

// Models lists the plan for req as backend:model strings.
func (s *Service) Models(req Request) []string {
	steps := s.plan(req)
	out := make([]string, len(steps))
	for i, st := range steps {
		out[i] = st.backend.Name() + ":" + st.model
	}
	return out
}

// Backoff is the wait before attempt n+1 of a step: base * 2^(n-1),
// capped at max.
func Backoff(base, limit time.Duration, n int) time.Duration {
	if n < 1 {
		return 0
	}
	d := base
	for i := 1; i < n && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}

// Analyze runs the attempt plan for req.
//
// Retryable errors and unparseable responses are retried up to MaxAttempts
// per step; other errors move to the next step. Context cancellation aborts
// immediately. When every step fails the canned fallback is returned with
// Degraded set, unless fallback is disabled.
//
// If ctx has a deadline the plan stops DeadlineReserve before it and the
// remaining steps are skipped as if they had failed.
func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "analysis.Analyze")
	defer span.End()

	if err := s.validate(&req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	ctx = logging.WithIngestionID(ctx, req.IngestionID)
	ctx = logging.WithReviewType(ctx, req.ReviewType)
	span.SetAttributes(
		attribute.String("ingestion_id", req.IngestionID),
		attribute.String("review_type", req.ReviewType),
		attribute.String("contract_type", req.ContractType),
	)
	start := time.Now()

	if s.cache != nil && !req.ForceRefresh {
		cached, err := s.cache.Get(ctx, req.IngestionID, req.ReviewType)
		switch {
		case err == nil && cached != nil:
			out := *cached
			out.Source = SourceCache
			s.metrics.result(SourceCache, time.Since(start).Seconds())
			s.logger.Debug(ctx, "analysis served from cache", zap.String("model", out.Model))
			span.SetAttributes(attribute.String("source", SourceCache))
			return &out, nil
		case err != nil && !errors.Is(err, ErrCacheMiss):
			s.logger.Warn(ctx, "analysis cache lookup failed", zap.Error(err))
		}
	}

	steps := s.plan(req)
	if len(steps) == 0 {
		span.SetStatus(codes.Error, ErrNoModels.Error())
		return nil, ErrNoModels
	}

	planCtx, cancel := s.planContext(ctx)
	defer cancel()

	var (
		attempts []Attempt
		lastErr  error
	)
	for i, st := range steps {
		if i > 0 {
			s.metrics.fallback("next_model")
			s.logger.Info(ctx, "analysis moving to next model",
				zap.String("backend", st.backend.Name()),
				zap.String("model", st.model))
		}

		res, stepAttempts, err := s.runStep(planCtx, req, st)
		attempts = append(attempts, stepAttempts...)
		if err == nil {
			res.Attempts = attempts
			s.finish(ctx, req, res)
			s.metrics.result(SourceAI, time.Since(start).Seconds())
			span.SetAttributes(
				attribute.String("source", SourceAI),
				attribute.String("model", res.Model),
				attribute.Int("attempts", len(attempts)),
			)
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			return nil, ctxErr
		}
		lastErr = err
		if planCtx.Err() != nil {
			lastErr = fmt.Errorf("analysis deadline reached: %w", err)
			s.metrics.fallback("deadline")
			s.logger.Warn(ctx, "analysis deadline reached, skipping remaining models",
				zap.Int("skipped", len(steps)-i-1))
			break
		}
	}

	span.SetAttributes(attribute.Int("attempts", len(attempts)))
	if !s.config.FallbackEnabled {
		err := fmt.Errorf("analysis failed after %d attempts: %w", len(attempts), lastErr)
		span.RecordError(err)
		span.SetStatus(codes.Error, "analysis failed")
		s.logger.Error(ctx, "analysis failed", zap.Int("attempts", len(attempts)), zap.Error(lastErr))
		return nil, err
	}

	s.metrics.fallback("exhausted")
	s.logger.Warn(ctx, "all analysis models failed, using fallback analysis",
		zap.Int("attempts", len(attempts)),
		zap.Error(lastErr))

	res := GenerateFallback(req)
	res.Attempts = attempts
	s.finish(ctx, req, res)
	s.metrics.result(SourceFallback, time.Since(start).Seconds())
	span.SetAttributes(attribute.String("source", SourceFallback))
	return res, nil
}

// planContext bounds the attempt plan to ctx's deadline minus the reserve.
func (s *Service) planContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || s.config.DeadlineReserve <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-s.config.DeadlineReserve))
}

// runStep makes up to MaxAttempts calls for one backend/model.
func (s *Service) runStep(ctx context.Context, req Request, st step) (*Result, []Attempt, error) {
	var (
		attempts []Attempt
		lastErr  error
	)
	for n := 1; n <= s.config.MaxAttempts; n++ {
		if n > 1 {
			wait := Backoff(s.config.BaseBackoff, s.config.MaxBackoff, n-1)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, attempts, ctx.Err()
			}
		}

		began := time.Now()
		raw, err := st.backend.Analyze(ctx, req, st.model)
		var res *Result
		if err == nil {
			res, err = Normalize(raw)
			if err != nil {
				err = &invalidResponseError{err: err}
			}
		}
		a := Attempt{
			Backend:  st.backend.Name(),
			Model:    st.model,
			Number:   n,
			Duration: time.Since(began),
		}
		if err == nil {
			attempts = append(attempts, a)
			s.metrics.attempt(a.Backend, a.Model, "success")
			res.Model = st.model
			res.Source = SourceAI
			return res, attempts, nil
		}

		a.Error = err.Error()
		attempts = append(attempts, a)
		lastErr = err

		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}

		retry := isRetryable(err)
		s.metrics.attempt(a.Backend, a.Model, outcome(err, retry))
		s.logger.Warn(ctx, "analysis attempt failed",
			zap.String("backend", a.Backend),
			zap.String("model", a.Model),
			zap.Int("attempt", n),
			zap.Bool("retryable", retry),
			zap.Error(err))
		if !retry {
			break
		}
	}
	return nil, attempts, lastErr
}

func (s *Service) validate(req *Request) error {
	if req.IngestionID == "" {
		return fmt.Errorf("%w: ingestionId is required", ErrInvalidRequest)
	}
	if req.ContractType == "" {
		return fmt.Errorf("%w: contractType is required", ErrInvalidRequest)
	}
	if req.ReviewType == "" {
		req.ReviewType = s.config.ReviewType
		if req.ReviewType == "" {
			req.ReviewType = DefaultReviewType
		}
	}
	return nil
}

// finish stamps request metadata and stores the result.
func (s *Service) finish(ctx context.Context, req Request, res *Result) {
	res.IngestionID = req.IngestionID
	res.ReviewType = req.ReviewType
	res.ContractType = req.ContractType
	res.Perspective = req.Perspective
	if res.GeneratedAt.IsZero() {
		res.GeneratedAt = time.Now().UTC()
	}
	if res.Issues == nil {
		res.Issues = []Issue{}
	}
	if res.Recommendations == nil {
		res.Recommendations = []string{}
	}

	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, res); err != nil {
		s.logger.Warn(ctx, "failed to store analysis", zap.Error(err))
	}
}

// invalidResponseError marks a response that could not be normalized.
type invalidResponseError struct {
	err error
}

func (e *invalidResponseError) Error() string {
	return "invalid analysis response: " + e.err.Error()
}

func (e *invalidResponseError) Unwrap() error {
	return e.err
}

func isRetryable(err error) bool {
	var inv *invalidResponseError
	if errors.As(err, &inv) {
		return true
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return true
	}
	return supabase.IsRetryable(err)
}

func outcome(err error, retryable bool) string {
	var inv *invalidResponseError
	switch {
	case errors.As(err, &inv):
		return "invalid"
	case retryable:
		return "retryable"
	}
	return "fatal"
}
