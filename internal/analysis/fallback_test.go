package analysis

import (
	"testing"

	"github.com/fyrsmithlabs/contractd/internal/clauses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func titles(issues []Issue) []string {
	out := make([]string, len(issues))
	for i, is := range issues {
		out[i] = is.Title
	}
	return out
}

func TestGenerateFallback_NDA(t *testing.T) {
	req := Request{
		IngestionID:  "ing-1",
		ContractType: "Mutual NDA",
		Perspective:  "receiving_party",
		Clauses: []clauses.Clause{
			{ID: "c1", Category: clauses.CategoryConfidentiality, Heading: "1. Confidential Information"},
			{ID: "c2", Category: clauses.CategoryConfidentiality},
			{ID: "c3", Category: clauses.CategoryGeneral},
		},
	}

	res := GenerateFallback(req)

	assert.Equal(t, SourceFallback, res.Source)
	assert.True(t, res.Degraded)
	assert.Equal(t, DefaultReviewType, res.ReviewType)
	assert.Equal(t, []string{
		"Confidentiality obligations require review",
		"Missing term clause",
	}, titles(res.Issues))

	assert.Equal(t, RiskHigh, res.Issues[0].Severity, "receiving party carries the confidentiality burden")
	assert.Equal(t, "1. Confidential Information", res.Issues[0].ClauseRef)
	assert.Equal(t, RiskHigh, res.OverallRisk)
	assert.Equal(t, 60, res.Score)
	assert.Contains(t, res.Summary, "Automated analysis was unavailable")
	assert.Contains(t, res.Summary, "1 missing critical clause")
	assert.Equal(t, genericRecommendation, res.Recommendations[len(res.Recommendations)-1])
}

func TestGenerateFallback_PerspectiveChangesSeverity(t *testing.T) {
	base := Request{
		ContractType: "nda",
		Clauses:      []clauses.Clause{{ID: "c1", Category: clauses.CategoryConfidentiality}, {ID: "c2", Category: clauses.CategoryTerm}},
	}

	disclosing := base
	disclosing.Perspective = "disclosing-party"
	receiving := base
	receiving.Perspective = "Receiving Party"

	assert.Equal(t, RiskMedium, GenerateFallback(disclosing).Issues[0].Severity)
	assert.Equal(t, RiskHigh, GenerateFallback(receiving).Issues[0].Severity)
	assert.Equal(t, RiskMedium, GenerateFallback(disclosing).Issues[1].Severity)
	assert.Equal(t, RiskLow, GenerateFallback(receiving).Issues[1].Severity)
}

func TestGenerateFallback_DPAPerspective(t *testing.T) {
	tests := []struct {
		perspective string
		want        string
	}{
		{"data-controller", RiskCritical},
		{"Data Controller", RiskCritical},
		{"controller", RiskCritical},
		{"data_processor", RiskHigh},
		{"", RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.perspective, func(t *testing.T) {
			res := GenerateFallback(Request{
				ContractType: "dpa",
				Perspective:  tt.perspective,
				Clauses:      []clauses.Clause{{ID: "c1", Category: clauses.CategoryDataProtection}},
			})
			require.NotEmpty(t, res.Issues)
			assert.Equal(t, tt.want, res.Issues[0].Severity)
		})
	}
}

func TestGenerateFallback_MissingCritical(t *testing.T) {
	tests := []struct {
		contractType string
		want         []string
	}{
		{"dpa", []string{"Missing data protection clause", "Missing liability clause"}},
		{"Data Processing Agreement", []string{"Missing data protection clause", "Missing liability clause"}},
		{"msa", []string{"Missing termination clause", "Missing liability clause", "Missing governing law clause"}},
	}
	for _, tt := range tests {
		t.Run(tt.contractType, func(t *testing.T) {
			res := GenerateFallback(Request{
				ContractType: tt.contractType,
				Clauses:      []clauses.Clause{{ID: "c1", Category: clauses.CategoryGeneral}},
			})
			assert.Equal(t, tt.want, titles(res.Issues))
		})
	}
}

func TestGenerateFallback_NoClauses(t *testing.T) {
	res := GenerateFallback(Request{IngestionID: "ing-1", ContractType: "nda", ReviewType: "risk_only"})

	assert.Empty(t, res.Issues)
	assert.NotNil(t, res.Issues)
	assert.Equal(t, []string{genericRecommendation}, res.Recommendations)
	assert.Equal(t, RiskUnknown, res.OverallRisk)
	assert.Equal(t, "risk_only", res.ReviewType)
	assert.True(t, res.Degraded)
}

func TestGenerateFallback_Deterministic(t *testing.T) {
	req := Request{
		ContractType: "services agreement",
		Perspective:  "customer",
		Clauses: []clauses.Clause{
			{ID: "a", Category: clauses.CategoryLiability},
			{ID: "b", Category: clauses.CategoryPayment},
			{ID: "c", Category: clauses.CategoryTermination},
		},
	}
	first, second := GenerateFallback(req), GenerateFallback(req)
	require.Equal(t, first.Issues, second.Issues)

	assert.Equal(t, RiskCritical, first.Issues[0].Severity)
	assert.Equal(t, RiskCritical, first.OverallRisk)
	assert.Equal(t, []string{
		"Limitation of liability",
		"Payment terms",
		"Termination rights",
		"Missing governing law clause",
	}, titles(first.Issues))
}

func TestContractFamily(t *testing.T) {
	assert.Equal(t, "nda", ContractFamily("NDA"))
	assert.Equal(t, "nda", ContractFamily("mutual-nda"))
	assert.Equal(t, "nda", ContractFamily("Non-Disclosure Agreement"))
	assert.Equal(t, "dpa", ContractFamily("DPA"))
	assert.Equal(t, "default", ContractFamily("msa"))
	assert.Equal(t, "default", ContractFamily(""))
}

func TestScoreFromIssues(t *testing.T) {
	assert.Equal(t, 100, ScoreFromIssues(nil))
	assert.Equal(t, 45, ScoreFromIssues([]Issue{{Severity: RiskCritical}, {Severity: RiskHigh}, {Severity: RiskLow}}))
	assert.Equal(t, 0, ScoreFromIssues([]Issue{{Severity: RiskCritical}, {Severity: RiskCritical}, {Severity: RiskCritical}, {Severity: RiskCritical}}))
}
