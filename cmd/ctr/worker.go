package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contractd/internal/workflows"
)

func init() {
	rootCmd.AddCommand(workerCmd)
}

// workerCmd runs a Temporal worker for review workflows
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a Temporal worker for review workflows",
	Long: `Run a worker that executes ContractReviewWorkflow on the configured task
queue (workflow.task_queue). Reviews started with "ctr review --workflow" are
picked up here. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func runWorker(cmd *cobra.Command, _ []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	c, err := workflows.Dial(env.cfg.Workflow)
	if err != nil {
		return err
	}
	defer c.Close()

	w := workflows.NewWorker(c, env.cfg.Workflow.TaskQueue, workflows.NewActivities(env.services.Pipeline()))

	env.logger.Info(cmd.Context(), "starting review worker",
		zap.String("host_port", env.cfg.Workflow.HostPort),
		zap.String("namespace", env.cfg.Workflow.Namespace),
		zap.String("task_queue", env.cfg.Workflow.TaskQueue))
	fmt.Fprintf(cmd.ErrOrStderr(), "Worker polling %s (Ctrl+C to stop)\n", env.cfg.Workflow.TaskQueue)

	if err := w.Run(worker.InterruptCh()); err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}
	return nil
}
