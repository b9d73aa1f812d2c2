package analysis

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Canonical(t *testing.T) {
	res, err := Normalize([]byte(`{
		"summary": "Balanced mutual NDA.",
		"overallRisk": "Moderate",
		"score": 72,
		"issues": [
			{"id": "i-1", "title": "Perpetual term", "description": "No end date.", "severity": "high", "clauseRef": "2. Term", "recommendation": "Cap at 3 years."},
			"Residuals clause is broad"
		],
		"recommendations": ["Limit the term", {"text": "Narrow residuals"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "Balanced mutual NDA.", res.Summary)
	assert.Equal(t, RiskMedium, res.OverallRisk)
	assert.Equal(t, 72, res.Score)
	require.Len(t, res.Issues, 2)
	assert.Equal(t, Issue{
		ID:             "i-1",
		Title:          "Perpetual term",
		Description:    "No end date.",
		Severity:       RiskHigh,
		ClauseRef:      "2. Term",
		Recommendation: "Cap at 3 years.",
	}, res.Issues[0])
	assert.Equal(t, Issue{ID: "issue-2", Title: "Residuals clause is broad", Severity: RiskMedium}, res.Issues[1])
	assert.Equal(t, []string{"Limit the term", "Narrow residuals"}, res.Recommendations)
}

func TestNormalize_Envelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"analysis object", `{"analysis":{"summary":"ok"}}`},
		{"nested data result", `{"data":{"result":{"executive_summary":"ok"}}}`},
		{"string envelope", `{"output":"{\"overview\":\"ok\"}"}`},
		{"fenced string", "{\"response\":\"```json\\n{\\\"summary\\\":\\\"ok\\\"}\\n```\"}"},
		{"four levels", `{"data":{"result":{"output":{"analysis":{"summary":"ok"}}}}}`},
		{"fenced body", "```json\n{\"summary\":\"ok\"}\n```"},
		{"prose around body", "Here is the analysis: {\"summary\":\"ok\"} Thanks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Normalize([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, "ok", res.Summary)
		})
	}
}

func TestNormalize_TooDeep(t *testing.T) {
	_, err := Normalize([]byte(`{"data":{"data":{"data":{"data":{"data":{"summary":"deep"}}}}}}`))
	assert.ErrorIs(t, err, ErrEmptyAnalysis)
}

func TestNormalize_RemoteError(t *testing.T) {
	for _, body := range []string{
		`{"error":"model overloaded"}`,
		`{"data":{"error":{"message":"model overloaded"}}}`,
	} {
		_, err := Normalize([]byte(body))
		var remote *RemoteError
		require.True(t, errors.As(err, &remote), body)
		assert.Equal(t, "model overloaded", remote.Message)
		assert.True(t, remote.Retryable())
	}
}

func TestNormalize_ErrorKeyWithContent(t *testing.T) {
	res, err := Normalize([]byte(`{"error":null,"summary":"fine"}`))
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Summary)
}

func TestNormalize_KeySynonyms(t *testing.T) {
	res, err := Normalize([]byte(`{
		"executiveSummary": "s",
		"risk_level": "severe",
		"overall_score": "0.85",
		"findings": [{"issue": "a", "details": "d", "risk": "extreme", "section": "7", "fix": "f"}],
		"suggestions": "one thing"
	}`))
	require.NoError(t, err)

	assert.Equal(t, RiskCritical, res.OverallRisk)
	assert.Equal(t, 85, res.Score)
	assert.Equal(t, Issue{ID: "issue-1", Title: "a", Description: "d", Severity: RiskCritical, ClauseRef: "7", Recommendation: "f"}, res.Issues[0])
	assert.Equal(t, []string{"one thing"}, res.Recommendations)
}

func TestNormalize_TitleFromMultibyteDescription(t *testing.T) {
	desc := "a" + strings.Repeat("å", 46)
	res, err := Normalize([]byte(`{"summary":"s","issues":[{"description":"` + desc + `","severity":"high"}]}`))
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)

	title := res.Issues[0].Title
	assert.True(t, utf8.ValidString(title), "%q", title)
	assert.Equal(t, "a"+strings.Repeat("å", 39)+"...", title)
	assert.Equal(t, desc, res.Issues[0].Description)
}

func TestNormalize_Score(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{`{"summary":"s","score":1}`, 100},
		{`{"summary":"s","score":0.5}`, 50},
		{`{"summary":"s","score":0}`, 0},
		{`{"summary":"s","score":150}`, 100},
		{`{"summary":"s","score":-4}`, 0},
		{`{"summary":"s","complianceScore":64.6}`, 65},
		{`{"summary":"s"}`, 100},
		{`{"summary":"s","issues":[{"title":"x","severity":"high"}]}`, 80},
	}
	for _, tt := range tests {
		res, err := Normalize([]byte(tt.body))
		require.NoError(t, err)
		assert.Equal(t, tt.want, res.Score, tt.body)
	}
}

func TestNormalize_RiskDerivedFromIssues(t *testing.T) {
	res, err := Normalize([]byte(`{"risks":[{"name":"a","level":"low"},{"name":"b","severity":"High"}]}`))
	require.NoError(t, err)
	assert.Equal(t, RiskHigh, res.OverallRisk)

	res, err = Normalize([]byte(`{"summary":"nothing to flag","overallRisk":"banana"}`))
	require.NoError(t, err)
	assert.Equal(t, RiskUnknown, res.OverallRisk)
}

func TestNormalize_Empty(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"summary":"","issues":[],"recommendations":[]}`,
		`{"status":"done"}`,
		`[1,2,3]`,
	} {
		_, err := Normalize([]byte(body))
		assert.ErrorIs(t, err, ErrEmptyAnalysis, body)
	}
}

func TestNormalize_NotJSON(t *testing.T) {
	_, err := Normalize([]byte(`<html>Bad Gateway</html>`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyAnalysis)
}

func TestNormalizeRisk(t *testing.T) {
	assert.Equal(t, RiskMedium, NormalizeRisk(" MODERATE "))
	assert.Equal(t, RiskCritical, NormalizeRisk("Severe"))
	assert.Equal(t, RiskLow, NormalizeRisk("low"))
	assert.Equal(t, RiskUnknown, NormalizeRisk(""))
}
