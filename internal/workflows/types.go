package workflows

import (
	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/clauses"
)

// ReviewInput starts a durable contract review. Path must be readable by
// the worker.
type ReviewInput struct {
	Path         string
	ContractType string
	Perspective  string
	Solution     analysis.Solution
	ReviewType   string
	Model        string
	ForceRefresh bool
}

// ReviewOutput summarizes a completed review.
type ReviewOutput struct {
	Path          string
	IngestionID   string
	ClausesCached bool
	ClauseCount   int
	ClauseSource  string
	Source        string // ai, fallback or cache
	OverallRisk   string
	Score         int
	Degraded      bool
	Output        string
	Errors        []string
}

// CreateIngestionInput is the input of Activities.CreateIngestion.
// IngestionID is chosen by the workflow so every attempt inserts the same
// record.
type CreateIngestionInput struct {
	IngestionID  string
	Path         string
	ContractType string
}

// DocumentInput names an ingestion and the file it was created from.
type DocumentInput struct {
	IngestionID  string
	Path         string
	ContractType string
	ForceRefresh bool
}

// IngestOutput is the result of Activities.Ingest.
type IngestOutput struct {
	ClausesCached bool
}

// AnalyzeInput is the input of Activities.Analyze.
type AnalyzeInput struct {
	IngestionID string
	Review      ReviewInput
	Clauses     []clauses.Clause
}

// WriteOutputInput is the input of Activities.WriteOutput.
type WriteOutputInput struct {
	Path   string
	Result *analysis.Result
}

// MarkFailedInput is the input of Activities.MarkFailed.
type MarkFailedInput struct {
	IngestionID string
	Stage       string
	Message     string
}
