package analysis

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/supabase"
)

// Backend produces a raw analysis body for one model.
type Backend interface {
	Name() string
	Analyze(ctx context.Context, req Request, model string) ([]byte, error)
}

// ContractAnalyzer is the subset of the Supabase client used by EdgeBackend.
type ContractAnalyzer interface {
	AnalyzeContract(ctx context.Context, req supabase.AnalyzeRequest, timeout time.Duration) ([]byte, error)
}

// EdgeBackend calls the analyze-contract edge function.
type EdgeBackend struct {
	client  ContractAnalyzer
	timeout time.Duration
}

// NewEdgeBackend creates an edge function backend.
func NewEdgeBackend(client ContractAnalyzer, timeout time.Duration) *EdgeBackend {
	return &EdgeBackend{client: client, timeout: timeout}
}

// Name implements Backend.
func (e *EdgeBackend) Name() string {
	return "edge"
}

// Analyze implements Backend.
func (e *EdgeBackend) Analyze(ctx context.Context, req Request, model string) ([]byte, error) {
	payload := supabase.AnalyzeRequest{
		IngestionID:  req.IngestionID,
		ReviewType:   req.ReviewType,
		Model:        model,
		ContractType: req.ContractType,
		Perspective:  req.Perspective,
		ForceRefresh: req.ForceRefresh,
	}
	if !req.Solution.IsZero() {
		payload.SelectedSolution = &supabase.SelectedSolution{
			ID:    req.Solution.ID,
			Key:   req.Solution.Key,
			Title: req.Solution.Title,
		}
	}
	return e.client.AnalyzeContract(ctx, payload, e.timeout)
}
