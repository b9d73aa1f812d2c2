package pipeline

import (
	"errors"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/document"
)

// Stage names, in execution order.
const (
	StageLoad            = "load"
	StageIngestionRecord = "ingestion-record"
	StageIngestContract  = "ingest-contract"
	StageExtractClauses  = "extract-clauses"
	StageAnalyzeContract = "analyze-contract"
	StageOutput          = "output"
)

// Job is one contract to review. Either Path or Document is set.
type Job struct {
	Path         string             `yaml:"path" json:"path"`
	Document     *document.Document `yaml:"-" json:"-"`
	ContractType string             `yaml:"contractType" json:"contractType"`
	Solution     analysis.Solution  `yaml:"solution" json:"selectedSolution"`
	Perspective  string             `yaml:"perspective" json:"perspective,omitempty"`
	ReviewType   string             `yaml:"reviewType" json:"reviewType,omitempty"`
	Model        string             `yaml:"model" json:"model,omitempty"`
	ForceRefresh bool               `yaml:"forceRefresh" json:"forceRefresh,omitempty"`
}

// name is how the job is reported: the path, or the upload name.
func (j Job) name() string {
	if j.Path != "" {
		return j.Path
	}
	if j.Document != nil {
		return j.Document.Name
	}
	return ""
}

// JobResult is the outcome of one job. Error is "<stage>:<cause>" when a
// stage failed; load failures carry the cause alone.
type JobResult struct {
	Path          string           `json:"path"`
	IngestionID   string           `json:"ingestionId,omitempty"`
	ClausesCached *bool            `json:"clausesCached,omitempty"`
	ClauseSource  string           `json:"clauseSource,omitempty"`
	Output        string           `json:"output,omitempty"`
	Result        *analysis.Result `json:"result,omitempty"`
	Error         string           `json:"error,omitempty"`

	err error
}

// Err returns the stage failure, or nil.
func (r *JobResult) Err() error {
	return r.err
}

// Failed reports whether a stage failed.
func (r *JobResult) Failed() bool {
	return r.err != nil
}

func (r *JobResult) fail(err error) *JobResult {
	r.err = err
	r.Error = err.Error()
	return r
}

// StageError records which stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if e.Stage == StageLoad {
		return e.Err.Error()
	}
	return e.Stage + ":" + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage of a StageError in err's chain, or "".
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
