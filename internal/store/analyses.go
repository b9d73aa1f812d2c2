package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"go.uber.org/zap"
)

// AnalysisSummary is a listing row for an analysis.
type AnalysisSummary struct {
	IngestionID string    `json:"ingestionId"`
	ReviewType  string    `json:"reviewType"`
	Source      string    `json:"source"`
	Model       string    `json:"model,omitempty"`
	OverallRisk string    `json:"overallRisk"`
	Score       int       `json:"score"`
	Degraded    bool      `json:"degraded"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// SaveAnalysis stores res, replacing any earlier analysis of the same
// ingestion and review type.
func (s *Store) SaveAnalysis(ctx context.Context, res *analysis.Result) error {
	if res.IngestionID == "" || res.ReviewType == "" {
		return fmt.Errorf("analysis requires ingestion id and review type")
	}
	body, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}
	generated := res.GeneratedAt
	if generated.IsZero() {
		generated = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (ingestion_id, review_type, source, model, overall_risk, score, degraded, result, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ingestion_id, review_type) DO UPDATE SET
			source = excluded.source,
			model = excluded.model,
			overall_risk = excluded.overall_risk,
			score = excluded.score,
			degraded = excluded.degraded,
			result = excluded.result,
			generated_at = excluded.generated_at
	`,
		res.IngestionID,
		res.ReviewType,
		res.Source,
		nullString(res.Model),
		res.OverallRisk,
		res.Score,
		res.Degraded,
		string(body),
		formatTime(generated),
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}
	s.logger.Debug(ctx, "saved analysis",
		zap.String("source", res.Source),
		zap.String("model", res.Model))
	return nil
}

// GetAnalysis returns the latest analysis of any source.
func (s *Store) GetAnalysis(ctx context.Context, ingestionID, reviewType string) (*analysis.Result, error) {
	return s.getAnalysis(ctx, ingestionID, reviewType, false)
}

func (s *Store) getAnalysis(ctx context.Context, ingestionID, reviewType string, aiOnly bool) (*analysis.Result, error) {
	query := `SELECT result FROM analyses WHERE ingestion_id = ? AND review_type = ?`
	args := []any{ingestionID, reviewType}
	if aiOnly {
		query += ` AND source = ?`
		args = append(args, analysis.SourceAI)
	}

	var body string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("analysis %s/%s: %w", ingestionID, reviewType, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}

	var res analysis.Result
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, fmt.Errorf("failed to decode stored analysis: %w", err)
	}
	return &res, nil
}

// ListAnalyses returns the most recent analyses first. limit <= 0 means 50.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]AnalysisSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ingestion_id, review_type, source, model, overall_risk, score, degraded, generated_at
		FROM analyses
		ORDER BY generated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	out := []AnalysisSummary{}
	for rows.Next() {
		var (
			a         AnalysisSummary
			model     sql.NullString
			generated string
		)
		if err := rows.Scan(&a.IngestionID, &a.ReviewType, &a.Source, &model, &a.OverallRisk, &a.Score, &a.Degraded, &generated); err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		a.Model = model.String
		a.GeneratedAt = parseTime(generated)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get implements analysis.Cache. Only AI results count as hits so that a
// degraded fallback is retried on the next request.
func (s *Store) Get(ctx context.Context, ingestionID, reviewType string) (*analysis.Result, error) {
	res, err := s.getAnalysis(ctx, ingestionID, reviewType, true)
	if errors.Is(err, ErrNotFound) {
		return nil, analysis.ErrCacheMiss
	}
	return res, err
}

// Put implements analysis.Cache.
func (s *Store) Put(ctx context.Context, res *analysis.Result) error {
	return s.SaveAnalysis(ctx, res)
}

var _ analysis.Cache = (*Store)(nil)
