// Package pipeline runs the review flow for contracts: load, ingestion
// record, ingest, clause extraction, analysis and output.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/clauses"
	"github.com/fyrsmithlabs/contractd/internal/document"
	"github.com/fyrsmithlabs/contractd/internal/events"
	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/store"
	"github.com/fyrsmithlabs/contractd/internal/supabase"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const instrumentationName = "github.com/fyrsmithlabs/contractd/internal/pipeline"

// Backend is the subset of the Supabase client the pipeline uses.
type Backend interface {
	InsertIngestion(ctx context.Context, rec supabase.IngestionRecord) (*supabase.IngestionRecord, error)
	Ingest(ctx context.Context, req supabase.IngestRequest, timeout time.Duration) (*supabase.IngestResponse, error)
}

// Analyzer runs analyses. *analysis.Service implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
}

// Recorder keeps local state. *store.Store implements it.
type Recorder interface {
	SaveIngestion(ctx context.Context, ing *store.Ingestion) error
	UpdateIngestionStatus(ctx context.Context, id, status, errMsg string) error
	SaveClauses(ctx context.Context, set *clauses.Set) error
}

// Config holds runner settings.
type Config struct {
	OutputDir     string
	StorageBucket string
	IngestTimeout time.Duration
	Concurrency   int
	// MaxDocumentSizeMB bounds loaded files; zero uses the document default.
	MaxDocumentSizeMB int
}

// Options wires the runner dependencies. Backend, Extractor and Analyzer
// are required.
type Options struct {
	Backend   Backend
	Extractor clauses.Extractor
	Analyzer  Analyzer
	Recorder  Recorder
	Publisher events.Publisher
	Logger    *logging.Logger
	Metrics   *Metrics
}

// Runner executes review jobs.
type Runner struct {
	config    Config
	loader    *document.Loader
	backend   Backend
	extractor clauses.Extractor
	analyzer  Analyzer
	recorder  Recorder
	publisher events.Publisher
	logger    *logging.Logger
	metrics   *Metrics
	tracer    trace.Tracer
}

// NewRunner creates a runner.
func NewRunner(cfg Config, opts Options) (*Runner, error) {
	if opts.Backend == nil || opts.Extractor == nil || opts.Analyzer == nil {
		return nil, errors.New("pipeline requires backend, extractor and analyzer")
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	if cfg.StorageBucket == "" {
		cfg.StorageBucket = "ingestions"
	}
	if cfg.IngestTimeout <= 0 {
		cfg.IngestTimeout = 180 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	return &Runner{
		config:    cfg,
		loader:    document.NewLoader(cfg.MaxDocumentSizeMB),
		backend:   opts.Backend,
		extractor: opts.Extractor,
		analyzer:  opts.Analyzer,
		recorder:  opts.Recorder,
		publisher: opts.Publisher,
		logger:    opts.Logger.Named("pipeline"),
		metrics:   opts.Metrics,
		tracer:    otel.Tracer(instrumentationName),
	}, nil
}

// Run executes every stage for job. Stage failures are reported in the
// result, not as an error; the first failure stops the job.
func (r *Runner) Run(ctx context.Context, job Job) *JobResult {
	ctx, span := r.tracer.Start(ctx, "pipeline.Run")
	defer span.End()

	res := &JobResult{Path: job.name()}
	finish := func(stage string, err error) *JobResult {
		if err != nil {
			se := &StageError{Stage: stage, Err: err}
			res.fail(se)
			span.RecordError(se)
			span.SetStatus(codes.Error, stage)
			r.metrics.job(stage, "failed")
			r.logger.Warn(ctx, "review failed", zap.String("stage", stage), zap.Error(err))
			if res.IngestionID != "" {
				r.UpdateStatus(ctx, res.IngestionID, supabase.StatusFailed, se.Error())
			}
			r.Publish(ctx, res.IngestionID, stage, events.StatusFailed, err.Error())
			r.Publish(ctx, res.IngestionID, events.StageDone, events.StatusFailed, se.Error())
			return res
		}
		r.metrics.job(stage, "completed")
		r.Publish(ctx, res.IngestionID, events.StageDone, events.StatusCompleted, res.Output)
		return res
	}

	doc, err := timed(r.metrics, StageLoad, func() (*document.Document, error) { return r.Load(job) })
	if err != nil {
		return finish(StageLoad, err)
	}
	span.SetAttributes(attribute.String("document", doc.Name), attribute.Int64("size", doc.Size()))

	id, err := r.CreateIngestion(ctx, "", doc, job)
	if err != nil {
		return finish(StageIngestionRecord, err)
	}
	res.IngestionID = id
	ctx = logging.WithIngestionID(ctx, id)
	span.SetAttributes(attribute.String("ingestion_id", id))
	r.Publish(ctx, id, StageIngestionRecord, events.StatusCompleted, doc.Name)

	ingested, err := r.Ingest(ctx, id, doc, job)
	if err != nil {
		return finish(StageIngestContract, err)
	}
	cached := ingested.ClausesCached
	res.ClausesCached = &cached
	r.UpdateStatus(ctx, id, supabase.StatusIngested, "")
	r.Publish(ctx, id, StageIngestContract, events.StatusCompleted, "")

	set, err := r.Extract(ctx, id, doc, job)
	if err != nil {
		return finish(StageExtractClauses, err)
	}
	res.ClauseSource = set.Source
	r.UpdateStatus(ctx, id, supabase.StatusExtracted, "")
	r.Publish(ctx, id, StageExtractClauses, events.StatusCompleted, fmt.Sprintf("%d clauses (%s)", len(set.Clauses), set.Source))

	result, err := r.Analyze(ctx, id, job, set)
	if err != nil {
		return finish(StageAnalyzeContract, err)
	}
	res.Result = result
	r.UpdateStatus(ctx, id, supabase.StatusAnalyzed, "")
	r.Publish(ctx, id, StageAnalyzeContract, events.StatusCompleted, result.Source)

	out, err := r.WriteOutput(doc.Name, result)
	if err != nil {
		return finish(StageOutput, err)
	}
	res.Output = out
	r.Publish(ctx, id, StageOutput, events.StatusCompleted, out)

	r.logger.Info(ctx, "review completed",
		zap.String("source", result.Source),
		zap.String("risk", result.OverallRisk),
		zap.String("output", out))
	return finish(StageOutput, nil)
}

// RunBatch runs jobs with bounded concurrency and returns results in input
// order. A failed job never stops the others.
func (r *Runner) RunBatch(ctx context.Context, jobs []Job) []*JobResult {
	results := make([]*JobResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = r.Run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Load reads a job's document.
func (r *Runner) Load(job Job) (*document.Document, error) {
	if job.Document != nil {
		return job.Document, nil
	}
	return r.loader.Load(job.Path)
}

// CreateIngestion inserts the ingestion record under id, or under a new id
// when id is empty. Inserting an id that already exists is not an error, so
// a retried call with the same id leaves one record.
func (r *Runner) CreateIngestion(ctx context.Context, id string, doc *document.Document, job Job) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	rec := supabase.IngestionRecord{
		ID:            id,
		Status:        supabase.StatusUploaded,
		StorageBucket: r.config.StorageBucket,
		StoragePath:   doc.StoragePath(id),
		OriginalName:  doc.Name,
		MIMEType:      doc.MIMEType,
		FileSize:      doc.Size(),
	}

	_, err := timed(r.metrics, StageIngestionRecord, func() (*supabase.IngestionRecord, error) {
		return r.backend.InsertIngestion(ctx, rec)
	})
	if err != nil {
		return "", err
	}

	if r.recorder != nil {
		ing := &store.Ingestion{
			ID:           id,
			OriginalName: doc.Name,
			MIMEType:     doc.MIMEType,
			FileSize:     doc.Size(),
			ContractType: job.ContractType,
			Status:       supabase.StatusUploaded,
		}
		if err := r.recorder.SaveIngestion(ctx, ing); err != nil {
			r.logger.Warn(logging.WithIngestionID(ctx, id), "failed to record ingestion locally", zap.Error(err))
		}
	}
	return id, nil
}

// Ingest sends the encoded document to the ingest-contract function.
func (r *Runner) Ingest(ctx context.Context, id string, doc *document.Document, job Job) (*supabase.IngestResponse, error) {
	return timed(r.metrics, StageIngestContract, func() (*supabase.IngestResponse, error) {
		return r.backend.Ingest(ctx, supabase.IngestRequest{
			IngestionID:    id,
			Content:        doc.Encoded(),
			FileType:       doc.MIMEType,
			FileName:       doc.Name,
			DocumentFormat: doc.Format(),
			ContractType:   job.ContractType,
		}, r.config.IngestTimeout)
	})
}

// Extract runs clause extraction and stores the clauses locally. The
// document text feeds the heuristic fallback when it can be read.
func (r *Runner) Extract(ctx context.Context, id string, doc *document.Document, job Job) (*clauses.Set, error) {
	in := clauses.Input{
		IngestionID:  id,
		ContractType: job.ContractType,
		ForceRefresh: job.ForceRefresh,
	}
	if doc != nil {
		if text, err := doc.Text(); err == nil {
			in.Text = text
		} else if !errors.Is(err, document.ErrTextUnavailable) {
			r.logger.Debug(ctx, "document text unavailable", zap.Error(err))
		}
	}

	set, err := timed(r.metrics, StageExtractClauses, func() (*clauses.Set, error) {
		return r.extractor.Extract(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	set.IngestionID = id

	if r.recorder != nil && len(set.Clauses) > 0 {
		if err := r.recorder.SaveClauses(ctx, set); err != nil {
			r.logger.Warn(ctx, "failed to store clauses locally", zap.Error(err))
		}
	}
	return set, nil
}

// Analyze runs the analysis service for an ingestion.
func (r *Runner) Analyze(ctx context.Context, id string, job Job, set *clauses.Set) (*analysis.Result, error) {
	req := analysis.Request{
		IngestionID:  id,
		ReviewType:   job.ReviewType,
		Model:        job.Model,
		ContractType: job.ContractType,
		Perspective:  job.Perspective,
		Solution:     job.Solution,
		ForceRefresh: job.ForceRefresh,
	}
	if set != nil {
		req.Clauses = set.Clauses
	}
	return timed(r.metrics, StageAnalyzeContract, func() (*analysis.Result, error) {
		return r.analyzer.Analyze(ctx, req)
	})
}

// WriteOutput writes the result JSON next to the other outputs and returns
// its path.
func (r *Runner) WriteOutput(docName string, result *analysis.Result) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	if err := os.MkdirAll(r.config.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(r.config.OutputDir, document.OutputName(docName))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return path, nil
}

// UpdateStatus sets the local ingestion status. Failures are logged.
func (r *Runner) UpdateStatus(ctx context.Context, id, status, errMsg string) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.UpdateIngestionStatus(ctx, id, status, errMsg); err != nil {
		r.logger.Warn(ctx, "failed to update ingestion status",
			zap.String("status", status),
			zap.Error(err))
	}
}

// Publish emits a review event. Failures are logged.
func (r *Runner) Publish(ctx context.Context, id, stage, status, msg string) {
	err := r.publisher.Publish(ctx, events.Event{
		IngestionID: id,
		Stage:       stage,
		Status:      status,
		Message:     msg,
	})
	if err != nil {
		r.logger.Warn(ctx, "failed to publish event", zap.String("stage", stage), zap.Error(err))
	}
}

// timed runs fn and records the stage duration.
func timed[T any](m *Metrics, stage string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	m.stage(stage, time.Since(start).Seconds())
	return v, err
}
