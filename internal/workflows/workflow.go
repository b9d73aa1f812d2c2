// Package workflows runs contract reviews as durable Temporal workflows.
//
// ContractReviewWorkflow executes the same stages as pipeline.Runner.Run,
// one activity per stage, so a review survives worker restarts and
// transient Supabase failures are retried by Temporal.
package workflows

import (
	"errors"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/clauses"
	"github.com/fyrsmithlabs/contractd/internal/pipeline"
	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ContractReviewWorkflow reviews one contract file.
//
// Workflow steps:
//  1. Load the document and insert the ingestion record
//  2. Ingest the document
//  3. Extract clauses
//  4. Analyze the contract (retries and fallback happen inside the activity)
//  5. Write the result file
//
// On failure the ingestion is marked failed and the error names the stage.
func ContractReviewWorkflow(ctx workflow.Context, input ReviewInput) (*ReviewOutput, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting contract review workflow",
		"path", input.Path,
		"contractType", input.ContractType)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// The analysis service already retries across models. It stops its
	// plan short of this deadline and falls back, so the activity does not
	// time out while models hang.
	analyzeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 20 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})

	result := &ReviewOutput{Path: input.Path}
	var a *Activities

	fail := func(stage string, err error) (*ReviewOutput, error) {
		msg := cause(err)
		result.Errors = append(result.Errors, stageMessage(stage, msg))
		logger.Error("Contract review failed", "stage", stage, "error", err)

		markCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: 30 * time.Second,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})
		if mErr := workflow.ExecuteActivity(markCtx, a.MarkFailed, MarkFailedInput{
			IngestionID: result.IngestionID,
			Stage:       stage,
			Message:     msg,
		}).Get(ctx, nil); mErr != nil {
			logger.Warn("Failed to mark review as failed", "error", mErr)
		}
		return result, NewWorkflowError(stage, err).withOutput(result)
	}

	// Step 1: Load and create the ingestion record. The id is recorded in
	// history so activity retries reuse it.
	var newID string
	if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
		return uuid.NewString()
	}).Get(&newID); err != nil {
		return fail(pipeline.StageIngestionRecord, err)
	}

	var ingestionID string
	err := workflow.ExecuteActivity(ctx, a.CreateIngestion, CreateIngestionInput{
		IngestionID:  newID,
		Path:         input.Path,
		ContractType: input.ContractType,
	}).Get(ctx, &ingestionID)
	if err != nil {
		stage := pipeline.StageIngestionRecord
		if errorType(err) == ErrTypeLoad {
			stage = pipeline.StageLoad
		}
		return fail(stage, err)
	}
	result.IngestionID = ingestionID

	doc := DocumentInput{
		IngestionID:  ingestionID,
		Path:         input.Path,
		ContractType: input.ContractType,
		ForceRefresh: input.ForceRefresh,
	}

	// Step 2: Ingest
	var ingested IngestOutput
	if err := workflow.ExecuteActivity(ctx, a.Ingest, doc).Get(ctx, &ingested); err != nil {
		return fail(pipeline.StageIngestContract, err)
	}
	result.ClausesCached = ingested.ClausesCached

	// Step 3: Extract clauses
	var set clauses.Set
	if err := workflow.ExecuteActivity(ctx, a.ExtractClauses, doc).Get(ctx, &set); err != nil {
		return fail(pipeline.StageExtractClauses, err)
	}
	result.ClauseCount = len(set.Clauses)
	result.ClauseSource = set.Source

	// Step 4: Analyze
	var analyzed analysis.Result
	if err := workflow.ExecuteActivity(analyzeCtx, a.Analyze, AnalyzeInput{
		IngestionID: ingestionID,
		Review:      input,
		Clauses:     set.Clauses,
	}).Get(ctx, &analyzed); err != nil {
		return fail(pipeline.StageAnalyzeContract, err)
	}
	result.Source = analyzed.Source
	result.OverallRisk = analyzed.OverallRisk
	result.Score = analyzed.Score
	result.Degraded = analyzed.Degraded

	// Step 5: Write the output file
	var output string
	if err := workflow.ExecuteActivity(ctx, a.WriteOutput, WriteOutputInput{
		Path:   input.Path,
		Result: &analyzed,
	}).Get(ctx, &output); err != nil {
		return fail(pipeline.StageOutput, err)
	}
	result.Output = output

	logger.Info("Contract review completed",
		"ingestionId", ingestionID,
		"source", result.Source,
		"risk", result.OverallRisk)

	return result, nil
}

// stageMessage formats a failure the way pipeline.JobResult.Error does.
func stageMessage(stage, msg string) string {
	return (&pipeline.StageError{Stage: stage, Err: errors.New(msg)}).Error()
}

// errorType returns the application error type carried by err, or "".
func errorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return ""
}

// cause strips the activity wrapper from err and returns the failure message.
func cause(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Message()
	}
	return err.Error()
}
