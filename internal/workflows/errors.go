package workflows

import (
	"errors"

	"go.temporal.io/sdk/temporal"
)

// ErrTypeStageFailed is the application error type of a failed review
// workflow. Its details carry the partial ReviewOutput.
const ErrTypeStageFailed = "ReviewStageFailed"

// WorkflowError records the stage a review workflow failed in.
type WorkflowError struct {
	Operation string // the stage that failed, e.g. "ingest-contract"
	Err       error
}

func (e *WorkflowError) Error() string {
	return e.Operation + " failed: " + e.Err.Error()
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// NewWorkflowError creates a new workflow error.
func NewWorkflowError(operation string, err error) *WorkflowError {
	return &WorkflowError{Operation: operation, Err: err}
}

// withOutput is what the workflow returns: a non-retryable application
// error, since rerunning the workflow would create a second ingestion.
func (e *WorkflowError) withOutput(out *ReviewOutput) error {
	return temporal.NewNonRetryableApplicationError(e.Error(), ErrTypeStageFailed, e.Err, out)
}

// FailedOutput recovers the partial output from the error of a failed
// review, as returned by WorkflowRun.Get. It reports false for any other
// error.
func FailedOutput(err error) (*ReviewOutput, bool) {
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != ErrTypeStageFailed || !appErr.HasDetails() {
		return nil, false
	}
	var out ReviewOutput
	if err := appErr.Details(&out); err != nil {
		return nil, false
	}
	return &out, true
}
