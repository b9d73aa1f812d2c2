package workflows

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/config"
	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// DefaultTaskQueue is used when no task queue is configured.
const DefaultTaskQueue = "contract-review"

// Register adds the review workflow and activities to r.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflow(ContractReviewWorkflow)
	r.RegisterActivity(acts)
}

// Dial connects to the Temporal frontend named in cfg.
func Dial(cfg config.WorkflowConfig) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create Temporal client: %w", err)
	}
	return c, nil
}

// NewWorker creates a worker for taskQueue with the review workflow
// registered.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	Register(w, acts)
	return w
}

// StartReview starts a review workflow. The workflow id is derived from the
// file name plus a random suffix, so the same file can be reviewed again.
func StartReview(ctx context.Context, c client.Client, taskQueue string, input ReviewInput) (client.WorkflowRun, error) {
	if input.Path == "" {
		return nil, fmt.Errorf("review path is required")
	}
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}

	options := client.StartWorkflowOptions{
		ID:        WorkflowID(input.Path),
		TaskQueue: taskQueue,
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	run, err := c.ExecuteWorkflow(startCtx, options, ContractReviewWorkflow, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}
	return run, nil
}

// WorkflowID builds the id for a review of path.
func WorkflowID(path string) string {
	return fmt.Sprintf("contract-review-%s-%s", filepath.Base(path), uuid.NewString()[:8])
}
