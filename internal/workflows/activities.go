package workflows

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/clauses"
	"github.com/fyrsmithlabs/contractd/internal/events"
	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/pipeline"
	"github.com/fyrsmithlabs/contractd/internal/supabase"
	"go.temporal.io/sdk/temporal"
)

// Application error types set on non-retryable activity failures.
const (
	ErrTypeLoad       = "LoadError"
	ErrTypeRejected   = "RejectedError"
	ErrTypeValidation = "ValidationError"
)

// Activities runs review stages on a worker. Each activity reloads the
// document from its path, so the path must be readable by every worker.
type Activities struct {
	runner *pipeline.Runner
}

// NewActivities creates review activities backed by runner.
func NewActivities(runner *pipeline.Runner) *Activities {
	return &Activities{runner: runner}
}

// CreateIngestion loads the document and inserts its ingestion record.
func (a *Activities) CreateIngestion(ctx context.Context, input CreateIngestionInput) (id string, err error) {
	defer func(start time.Time) { observe(ctx, "CreateIngestion", start, err) }(time.Now())

	job := pipeline.Job{Path: input.Path, ContractType: input.ContractType}
	doc, err := a.runner.Load(job)
	if err != nil {
		return "", temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeLoad, err)
	}

	id, err = a.runner.CreateIngestion(ctx, input.IngestionID, doc, job)
	if err != nil {
		return "", classify(err)
	}
	a.runner.Publish(ctx, id, pipeline.StageIngestionRecord, events.StatusCompleted, doc.Name)
	return id, nil
}

// Ingest sends the document to the ingest-contract function.
func (a *Activities) Ingest(ctx context.Context, input DocumentInput) (out *IngestOutput, err error) {
	defer func(start time.Time) { observe(ctx, "Ingest", start, err) }(time.Now())

	ctx = logging.WithIngestionID(ctx, input.IngestionID)
	job := pipeline.Job{Path: input.Path, ContractType: input.ContractType}
	doc, err := a.runner.Load(job)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeLoad, err)
	}

	resp, err := a.runner.Ingest(ctx, input.IngestionID, doc, job)
	if err != nil {
		return nil, classify(err)
	}
	a.runner.UpdateStatus(ctx, input.IngestionID, supabase.StatusIngested, "")
	a.runner.Publish(ctx, input.IngestionID, pipeline.StageIngestContract, events.StatusCompleted, "")
	return &IngestOutput{ClausesCached: resp.ClausesCached}, nil
}

// ExtractClauses extracts and stores the contract clauses.
func (a *Activities) ExtractClauses(ctx context.Context, input DocumentInput) (set *clauses.Set, err error) {
	defer func(start time.Time) { observe(ctx, "ExtractClauses", start, err) }(time.Now())

	ctx = logging.WithIngestionID(ctx, input.IngestionID)
	job := pipeline.Job{Path: input.Path, ContractType: input.ContractType, ForceRefresh: input.ForceRefresh}
	// The document only feeds the heuristic fallback, so a load failure here
	// is not fatal.
	doc, _ := a.runner.Load(job)

	set, err = a.runner.Extract(ctx, input.IngestionID, doc, job)
	if err != nil {
		return nil, classify(err)
	}
	a.runner.UpdateStatus(ctx, input.IngestionID, supabase.StatusExtracted, "")
	a.runner.Publish(ctx, input.IngestionID, pipeline.StageExtractClauses, events.StatusCompleted,
		fmt.Sprintf("%d clauses (%s)", len(set.Clauses), set.Source))
	return set, nil
}

// Analyze runs the analysis retry and fallback chain.
func (a *Activities) Analyze(ctx context.Context, input AnalyzeInput) (result *analysis.Result, err error) {
	defer func(start time.Time) { observe(ctx, "Analyze", start, err) }(time.Now())

	ctx = logging.WithIngestionID(ctx, input.IngestionID)
	job := jobFor(input.Review)
	set := &clauses.Set{IngestionID: input.IngestionID, Clauses: input.Clauses}

	result, err = a.runner.Analyze(ctx, input.IngestionID, job, set)
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidRequest) || errors.Is(err, analysis.ErrNoModels) {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeValidation, err)
		}
		return nil, err
	}
	a.runner.UpdateStatus(ctx, input.IngestionID, supabase.StatusAnalyzed, "")
	a.runner.Publish(ctx, input.IngestionID, pipeline.StageAnalyzeContract, events.StatusCompleted, result.Source)
	return result, nil
}

// WriteOutput writes the result file and reports completion.
func (a *Activities) WriteOutput(ctx context.Context, input WriteOutputInput) (path string, err error) {
	defer func(start time.Time) { observe(ctx, "WriteOutput", start, err) }(time.Now())

	if input.Result == nil {
		return "", temporal.NewNonRetryableApplicationError("no result to write", ErrTypeValidation, nil)
	}
	path, err = a.runner.WriteOutput(filepath.Base(input.Path), input.Result)
	if err != nil {
		return "", err
	}
	a.runner.Publish(ctx, input.Result.IngestionID, pipeline.StageOutput, events.StatusCompleted, path)
	a.runner.Publish(ctx, input.Result.IngestionID, events.StageDone, events.StatusCompleted, path)
	return path, nil
}

// MarkFailed records a failed review. It never fails.
func (a *Activities) MarkFailed(ctx context.Context, input MarkFailedInput) error {
	msg := stageMessage(input.Stage, input.Message)
	if input.IngestionID != "" {
		a.runner.UpdateStatus(ctx, input.IngestionID, supabase.StatusFailed, msg)
	}
	a.runner.Publish(ctx, input.IngestionID, input.Stage, events.StatusFailed, input.Message)
	a.runner.Publish(ctx, input.IngestionID, events.StageDone, events.StatusFailed, msg)
	return nil
}

// classify marks Supabase rejections as non-retryable so Temporal does
// not repeat a request the function already refused.
func classify(err error) error {
	var fe *supabase.FunctionError
	if errors.As(err, &fe) && !fe.Retryable() {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeRejected, err)
	}
	return err
}

func jobFor(in ReviewInput) pipeline.Job {
	return pipeline.Job{
		Path:         in.Path,
		ContractType: in.ContractType,
		Solution:     in.Solution,
		Perspective:  in.Perspective,
		ReviewType:   in.ReviewType,
		Model:        in.Model,
		ForceRefresh: in.ForceRefresh,
	}
}
