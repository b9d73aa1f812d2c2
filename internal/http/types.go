package http

import "github.com/fyrsmithlabs/contractd/internal/store"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version,omitempty"`
	Services map[string]string `json:"services"`
	Models   []string          `json:"models,omitempty"`
	Counts   *store.Counts     `json:"counts,omitempty"`
}

// ErrorResponse is the body of failed API calls.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListAnalysesResponse is the response body for GET /api/v1/analyses.
type ListAnalysesResponse struct {
	Analyses []store.AnalysisSummary `json:"analyses"`
}
