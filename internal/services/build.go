package services

import (
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/clauses"
	"github.com/fyrsmithlabs/contractd/internal/config"
	"github.com/fyrsmithlabs/contractd/internal/events"
	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/pipeline"
	"github.com/fyrsmithlabs/contractd/internal/store"
	"github.com/fyrsmithlabs/contractd/internal/supabase"
)

// Build creates every service described by cfg. The returned close function
// releases the store and the NATS connection.
//
// The store and NATS are optional: a disabled store means results are not
// cached locally, disabled events fall back to events.NopPublisher.
func Build(cfg *config.Config, logger *logging.Logger) (Registry, func() error, error) {
	if cfg == nil {
		return nil, nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	var closers []func() error
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (Registry, func() error, error) {
		_ = closeAll()
		return nil, nil, err
	}

	sb, err := supabase.New(supabase.Config{
		URL:           cfg.Supabase.URL,
		AnonKey:       cfg.Supabase.AnonKey.Value(),
		ServiceKey:    cfg.Supabase.ServiceRoleKey.Value(),
		RateLimit:     cfg.Supabase.RateLimit,
		Burst:         cfg.Supabase.Burst,
		RecordTimeout: cfg.Supabase.RecordTimeout,
		Logger:        logger,
	})
	if err != nil {
		return fail(fmt.Errorf("supabase client: %w", err))
	}

	var st *store.Store
	if cfg.Store.Enabled {
		st, err = store.Open(cfg.Store.Path, logger)
		if err != nil {
			return fail(fmt.Errorf("open store: %w", err))
		}
		closers = append(closers, st.Close)
	}

	var (
		nc        *nats.Conn
		publisher events.Publisher = events.NopPublisher{}
	)
	if cfg.Events.Enabled {
		nc, err = events.Connect(cfg.Events.URL, logger)
		if err != nil {
			return fail(fmt.Errorf("connect events: %w", err))
		}
		closers = append(closers, func() error { nc.Close(); return nil })
		publisher = events.NewNATSPublisher(nc, logger)
	}

	svc, err := NewAnalysisService(cfg.Analysis, sb, cfg.Supabase, st, logger)
	if err != nil {
		return fail(err)
	}

	extractor := clauses.NewFallbackExtractor(
		clauses.NewRemoteExtractor(sb, cfg.Supabase.ExtractTimeout),
		clauses.NewHeuristicExtractor(),
		logger,
	)

	opts := pipeline.Options{
		Backend:   sb,
		Extractor: extractor,
		Analyzer:  svc,
		Publisher: publisher,
		Logger:    logger,
		Metrics:   pipeline.DefaultMetrics(),
	}
	if st != nil {
		opts.Recorder = st
	}
	runner, err := pipeline.NewRunner(pipeline.Config{
		OutputDir:         cfg.Pipeline.OutputDir,
		StorageBucket:     cfg.Pipeline.StorageBucket,
		IngestTimeout:     cfg.Supabase.IngestTimeout,
		Concurrency:       cfg.Pipeline.Concurrency,
		MaxDocumentSizeMB: cfg.Pipeline.MaxDocumentSizeMB,
	}, opts)
	if err != nil {
		return fail(fmt.Errorf("pipeline: %w", err))
	}

	reg := NewRegistry(Options{
		Analysis: svc,
		Pipeline: runner,
		Store:    st,
		Events:   publisher,
		NATS:     nc,
		Supabase: sb,
	})
	return reg, closeAll, nil
}

// NewAnalysisService builds the analysis retry chain: the analyze-contract
// edge function first, then the direct provider when enabled. Results are
// cached in st when it is not nil.
func NewAnalysisService(acfg config.AnalysisConfig, sb *supabase.Client, scfg config.SupabaseConfig, st *store.Store, logger *logging.Logger) (*analysis.Service, error) {
	opts := analysis.Options{
		Edge:    analysis.NewEdgeBackend(sb, scfg.AnalyzeTimeout),
		Logger:  logger,
		Metrics: analysis.DefaultMetrics(),
	}
	if st != nil {
		opts.Cache = st
	}
	if acfg.Direct.Enabled {
		direct, err := analysis.NewDirectBackend(analysis.DirectConfig{
			BaseURL: acfg.Direct.BaseURL,
			Model:   acfg.Direct.Model,
			APIKey:  acfg.Direct.APIKey.Value(),
			Timeout: acfg.Direct.Timeout,
		})
		if err != nil {
			return nil, err
		}
		opts.Direct = direct
	}

	svc, err := analysis.NewService(&analysis.Config{
		DefaultModel:    acfg.DefaultModel,
		FallbackModels:  acfg.FallbackModels,
		ReviewType:      acfg.ReviewType,
		MaxAttempts:     acfg.MaxAttempts,
		BaseBackoff:     acfg.BaseBackoff,
		MaxBackoff:      acfg.MaxBackoff,
		FallbackEnabled: acfg.FallbackEnabled,
		DeadlineReserve: acfg.DeadlineReserve,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("analysis service: %w", err)
	}
	return svc, nil
}
