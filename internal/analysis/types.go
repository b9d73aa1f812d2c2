package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/clauses"
)

// DefaultReviewType is used when a request does not name one.
const DefaultReviewType = "full_summary"

// Sources of a result.
const (
	SourceAI       = "ai"
	SourceFallback = "fallback"
	SourceCache    = "cache"
)

// Risk levels, lowest to highest.
const (
	RiskUnknown  = "unknown"
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

var (
	// ErrEmptyAnalysis is returned by Normalize when a response carries no
	// summary, issues or recommendations.
	ErrEmptyAnalysis = errors.New("analysis response is empty")

	// ErrNoModels is returned when the attempt plan is empty.
	ErrNoModels = errors.New("no analysis models configured")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid analysis request")
)

// Solution is the product offering the contract is reviewed against.
type Solution struct {
	ID    string `json:"id" yaml:"id"`
	Key   string `json:"key" yaml:"key"`
	Title string `json:"title" yaml:"title"`
}

// IsZero reports whether no solution was selected.
func (s Solution) IsZero() bool {
	return s.ID == "" && s.Key == "" && s.Title == ""
}

// Request asks for one contract analysis.
type Request struct {
	IngestionID  string           `json:"ingestionId"`
	ReviewType   string           `json:"reviewType,omitempty"`
	Model        string           `json:"model,omitempty"`
	ContractType string           `json:"contractType"`
	Perspective  string           `json:"perspective,omitempty"`
	Solution     Solution         `json:"selectedSolution"`
	Clauses      []clauses.Clause `json:"clauses,omitempty"`
	ForceRefresh bool             `json:"forceRefresh,omitempty"`
}

// Issue is one finding in an analysis.
type Issue struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Severity       string `json:"severity"`
	ClauseRef      string `json:"clauseRef,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// Attempt records one backend call.
type Attempt struct {
	Backend  string        `json:"backend"`
	Model    string        `json:"model"`
	Number   int           `json:"number"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"durationNs"`
}

// Result is the normalized analysis.
type Result struct {
	IngestionID     string    `json:"ingestionId"`
	ReviewType      string    `json:"reviewType"`
	ContractType    string    `json:"contractType"`
	Perspective     string    `json:"perspective,omitempty"`
	Model           string    `json:"model,omitempty"`
	Source          string    `json:"source"`
	Summary         string    `json:"summary"`
	OverallRisk     string    `json:"overallRisk"`
	Score           int       `json:"score"`
	Issues          []Issue   `json:"issues"`
	Recommendations []string  `json:"recommendations"`
	Attempts        []Attempt `json:"attempts,omitempty"`
	Degraded        bool      `json:"degraded"`
	GeneratedAt     time.Time `json:"generatedAt"`
}

// Cache stores results between runs.
type Cache interface {
	Get(ctx context.Context, ingestionID, reviewType string) (*Result, error)
	Put(ctx context.Context, result *Result) error
}

var riskRank = map[string]int{
	RiskUnknown:  0,
	RiskLow:      1,
	RiskMedium:   2,
	RiskHigh:     3,
	RiskCritical: 4,
}

// HigherRisk returns the more severe of a and b.
func HigherRisk(a, b string) string {
	if riskRank[b] > riskRank[a] {
		return b
	}
	return a
}

// HighestSeverity is the most severe issue level, or unknown.
func HighestSeverity(issues []Issue) string {
	risk := RiskUnknown
	for _, is := range issues {
		risk = HigherRisk(risk, is.Severity)
	}
	return risk
}
