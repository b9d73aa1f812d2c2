package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/pipeline"
	"github.com/fyrsmithlabs/contractd/internal/workflows"
)

// jobFlags are the review options shared by review, watch and analyze.
type jobFlags struct {
	contractType  string
	perspective   string
	reviewType    string
	model         string
	forceRefresh  bool
	solutionID    string
	solutionKey   string
	solutionTitle string
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.contractType, "type", "t", "", "contract type, e.g. non_disclosure_agreement (required)")
	cmd.Flags().StringVar(&f.perspective, "perspective", "", "party the review is written for")
	cmd.Flags().StringVar(&f.reviewType, "review-type", "", "review type (default from config)")
	cmd.Flags().StringVar(&f.model, "model", "", "first model to try (default from config)")
	cmd.Flags().BoolVar(&f.forceRefresh, "force-refresh", false, "ignore cached clauses and analyses")
	cmd.Flags().StringVar(&f.solutionID, "solution-id", "", "selected solution id")
	cmd.Flags().StringVar(&f.solutionKey, "solution-key", "", "selected solution key")
	cmd.Flags().StringVar(&f.solutionTitle, "solution-title", "", "selected solution title")
	_ = cmd.MarkFlagRequired("type")
}

func (f *jobFlags) solution() analysis.Solution {
	return analysis.Solution{ID: f.solutionID, Key: f.solutionKey, Title: f.solutionTitle}
}

func (f *jobFlags) job(path string) pipeline.Job {
	return pipeline.Job{
		Path:         path,
		ContractType: f.contractType,
		Perspective:  f.perspective,
		ReviewType:   f.reviewType,
		Model:        f.model,
		ForceRefresh: f.forceRefresh,
		Solution:     f.solution(),
	}
}

var (
	reviewFlags jobFlags
	useWorkflow bool
)

func init() {
	reviewFlags.register(reviewCmd)
	reviewCmd.Flags().BoolVar(&useWorkflow, "workflow", false, "run the review as a Temporal workflow")
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(batchCmd)
}

// reviewCmd reviews one contract
var reviewCmd = &cobra.Command{
	Use:   "review <file>",
	Short: "Review a contract file",
	Long: `Run ingestion, clause extraction and analysis on one PDF or DOCX file.
The result is printed as JSON and the analysis is written to the output
directory.

Examples:
  # Review an NDA from the disclosing party's side
  ctr review --type non_disclosure_agreement --perspective disclosing-party "Demo NDA.docx"

  # Hand the review to a Temporal worker
  ctr review --type services_agreement --workflow msa.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

// batchCmd reviews every contract in a manifest
var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Review the contracts listed in a manifest",
	Long: `Review every job in a YAML manifest with bounded concurrency and print
the results as a JSON array in manifest order. A failed job does not stop
the others.

Manifest format:
  - path: docs/Demo NDA.docx
    contractType: non_disclosure_agreement
    perspective: disclosing-party
    solution: {id: nda, key: nda, title: Non-Disclosure Agreement}`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func runReview(cmd *cobra.Command, args []string) error {
	if useWorkflow {
		return runReviewWorkflow(cmd, args[0])
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	res := env.services.Pipeline().Run(cmd.Context(), reviewFlags.job(args[0]))
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	if res.Failed() {
		return fmt.Errorf("review failed: %s", res.Error)
	}
	return nil
}

// runReviewWorkflow starts a workflow and waits for its result. The worker
// reads the file, so the path is made absolute.
func runReviewWorkflow(cmd *cobra.Command, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

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

	job := reviewFlags.job(abs)
	run, err := workflows.StartReview(cmd.Context(), c, env.cfg.Workflow.TaskQueue, workflows.ReviewInput{
		Path:         job.Path,
		ContractType: job.ContractType,
		Perspective:  job.Perspective,
		Solution:     job.Solution,
		ReviewType:   job.ReviewType,
		Model:        job.Model,
		ForceRefresh: job.ForceRefresh,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Started workflow %s (run %s)\n", run.GetID(), run.GetRunID())

	var out workflows.ReviewOutput
	if err := run.Get(cmd.Context(), &out); err != nil {
		if partial, ok := workflows.FailedOutput(err); ok {
			_ = printJSON(cmd.OutOrStdout(), partial)
		}
		return fmt.Errorf("workflow %s failed: %w", run.GetID(), err)
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runBatch(cmd *cobra.Command, args []string) error {
	jobs, err := pipeline.LoadManifest(args[0])
	if err != nil {
		return err
	}

	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	results := env.services.Pipeline().RunBatch(cmd.Context(), jobs)

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if err := printJSON(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%d/%d contracts reviewed\n", len(results)-failed, len(results))
	return nil
}
