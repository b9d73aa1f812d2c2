package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/store"
)

var (
	analyzeFlags   jobFlags
	showReviewType string
)

func init() {
	analyzeFlags.register(analyzeCmd)
	showCmd.Flags().StringVar(&showReviewType, "review-type", analysis.DefaultReviewType, "review type of the stored analysis")
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(showCmd)
}

// analyzeCmd re-runs the analysis of an existing ingestion
var analyzeCmd = &cobra.Command{
	Use:   "analyze <ingestionId>",
	Short: "Analyze an existing ingestion",
	Long: `Run the analysis chain for an ingestion that was already created.
Clauses stored locally by an earlier review are sent along; cached analyses
are returned unless --force-refresh is set.

Examples:
  ctr analyze --type non_disclosure_agreement 7c9e6679-7425-40de-944b-e07fc1f90ae7
  ctr analyze --type employment_agreement --model openai-gpt-5-mini --force-refresh <id>`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

// showCmd prints what the local store knows about an ingestion
var showCmd = &cobra.Command{
	Use:   "show <ingestionId>",
	Short: "Show a stored ingestion and its analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

// ShowResponse is the output of ctr show.
type ShowResponse struct {
	Ingestion *store.Ingestion `json:"ingestion"`
	Clauses   int              `json:"clauses"`
	Analysis  *analysis.Result `json:"analysis,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	ctx := cmd.Context()
	req := analysis.Request{
		IngestionID:  args[0],
		ContractType: analyzeFlags.contractType,
		Perspective:  analyzeFlags.perspective,
		ReviewType:   analyzeFlags.reviewType,
		Model:        analyzeFlags.model,
		ForceRefresh: analyzeFlags.forceRefresh,
		Solution:     analyzeFlags.solution(),
	}
	if st := env.services.Store(); st != nil {
		set, err := st.GetClauses(ctx, req.IngestionID)
		switch {
		case err == nil:
			req.Clauses = set.Clauses
		case !errors.Is(err, store.ErrNotFound):
			env.logger.Warn(ctx, "failed to load stored clauses", zap.Error(err))
		}
	}

	res, err := env.services.Analysis().Analyze(ctx, req)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	return printJSON(cmd.OutOrStdout(), res)
}

func runShow(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	st := env.services.Store()
	if st == nil {
		return errors.New("local store is disabled (store.enabled=false)")
	}

	ctx := cmd.Context()
	ing, err := st.GetIngestion(ctx, args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("ingestion %s not found", args[0])
		}
		return err
	}
	out := ShowResponse{Ingestion: ing}

	set, err := st.GetClauses(ctx, ing.ID)
	switch {
	case err == nil:
		out.Clauses = len(set.Clauses)
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	res, err := st.GetAnalysis(ctx, ing.ID, showReviewType)
	switch {
	case err == nil:
		out.Analysis = res
	case !errors.Is(err, store.ErrNotFound):
		return err
	}

	return printJSON(cmd.OutOrStdout(), out)
}
