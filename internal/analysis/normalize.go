package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const maxEnvelopeDepth = 4

var (
	envelopeKeys       = []string{"analysis", "result", "data", "output", "response"}
	summaryKeys        = []string{"summary", "executiveSummary", "executive_summary", "overview"}
	riskKeys           = []string{"overallRisk", "overall_risk", "riskLevel", "risk_level"}
	scoreKeys          = []string{"score", "overallScore", "overall_score", "complianceScore"}
	issueKeys          = []string{"issues", "risks", "findings", "concerns"}
	recommendationKeys = []string{"recommendations", "suggestions", "actions"}

	issueTitleKeys       = []string{"title", "issue", "name"}
	issueDescriptionKeys = []string{"description", "details", "explanation"}
	issueSeverityKeys    = []string{"severity", "risk", "level"}
	issueClauseKeys      = []string{"clause", "clauseRef", "clause_ref", "section"}
	issueFixKeys         = []string{"recommendation", "suggestion", "fix"}
	recommendationText   = []string{"text", "recommendation", "title"}

	contentKeys = concat(summaryKeys, riskKeys, scoreKeys, issueKeys, recommendationKeys)

	fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

// RemoteError is an error reported inside an otherwise successful
// response body. It is treated as retryable.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote analysis error: " + e.Message
}

// Retryable implements the retry classification used by the service.
func (e *RemoteError) Retryable() bool {
	return true
}

// Normalize maps a heterogeneous analysis response onto Result. Request
// metadata (ingestion, review type, model) is left for the caller.
func Normalize(raw []byte) (*Result, error) {
	doc, ok := parseLoose(string(raw))
	if !ok {
		return nil, fmt.Errorf("analysis response is not JSON")
	}

	for depth := 0; depth <= maxEnvelopeDepth; depth++ {
		if doc.Type == gjson.String {
			inner, ok := parseLoose(doc.String())
			if !ok {
				// A bare string is taken as the summary
				wrapped, _ := json.Marshal(map[string]string{"summary": doc.String()})
				doc = gjson.ParseBytes(wrapped)
				break
			}
			doc = inner
			continue
		}
		if !doc.IsObject() {
			break
		}
		if err := remoteError(doc); err != nil {
			return nil, err
		}
		if hasAny(doc, contentKeys) || depth == maxEnvelopeDepth {
			break
		}
		next, found := firstPresent(doc, envelopeKeys)
		if !found {
			break
		}
		doc = next
	}

	if !doc.IsObject() {
		return nil, ErrEmptyAnalysis
	}

	res := &Result{
		Summary:         strings.TrimSpace(firstString(doc, summaryKeys)),
		Issues:          parseIssues(doc),
		Recommendations: parseRecommendations(doc),
	}
	if res.Summary == "" && len(res.Issues) == 0 && len(res.Recommendations) == 0 {
		return nil, ErrEmptyAnalysis
	}

	res.OverallRisk = NormalizeRisk(firstString(doc, riskKeys))
	if res.OverallRisk == RiskUnknown {
		res.OverallRisk = HighestSeverity(res.Issues)
	}

	if v, found := firstPresent(doc, scoreKeys); found {
		res.Score = normalizeScore(v.Float())
	} else {
		res.Score = ScoreFromIssues(res.Issues)
	}

	return res, nil
}

// parseLoose accepts JSON optionally wrapped in markdown fences or
// surrounded by prose.
func parseLoose(s string) (gjson.Result, bool) {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if gjson.Valid(s) {
		return gjson.Parse(s), true
	}
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start >= 0 && end > start && gjson.Valid(s[start:end+1]) {
		return gjson.Parse(s[start : end+1]), true
	}
	return gjson.Result{}, false
}

func remoteError(doc gjson.Result) error {
	v := doc.Get("error")
	if !v.Exists() || hasAny(doc, contentKeys) {
		return nil
	}
	switch {
	case v.Type == gjson.String && v.String() != "":
		return &RemoteError{Message: v.String()}
	case v.IsObject():
		if msg := v.Get("message").String(); msg != "" {
			return &RemoteError{Message: msg}
		}
		return &RemoteError{Message: v.Raw}
	}
	return nil
}

func parseIssues(doc gjson.Result) []Issue {
	arr, found := firstPresent(doc, issueKeys)
	if !found || !arr.IsArray() {
		return nil
	}

	var issues []Issue
	arr.ForEach(func(_, item gjson.Result) bool {
		n := len(issues) + 1
		is := Issue{ID: fmt.Sprintf("issue-%d", n), Severity: RiskMedium}

		switch {
		case item.Type == gjson.String:
			is.Title = strings.TrimSpace(item.String())
		case item.IsObject():
			if id := item.Get("id").String(); id != "" {
				is.ID = id
			}
			is.Title = firstString(item, issueTitleKeys)
			is.Description = firstString(item, issueDescriptionKeys)
			is.ClauseRef = firstString(item, issueClauseKeys)
			is.Recommendation = firstString(item, issueFixKeys)
			if sev := NormalizeRisk(firstString(item, issueSeverityKeys)); sev != RiskUnknown {
				is.Severity = sev
			}
			if is.Title == "" {
				is.Title = truncate(is.Description, 80)
			}
		default:
			return true
		}
		if is.Title != "" {
			issues = append(issues, is)
		}
		return true
	})
	return issues
}

func parseRecommendations(doc gjson.Result) []string {
	v, found := firstPresent(doc, recommendationKeys)
	if !found {
		return nil
	}
	if v.Type == gjson.String {
		if s := strings.TrimSpace(v.String()); s != "" {
			return []string{s}
		}
		return nil
	}

	var out []string
	v.ForEach(func(_, item gjson.Result) bool {
		var s string
		if item.IsObject() {
			s = firstString(item, recommendationText)
		} else if item.Type == gjson.String {
			s = item.String()
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		return true
	})
	return out
}

// NormalizeRisk maps free-form risk labels onto the fixed levels.
func NormalizeRisk(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "minor", "minimal":
		return RiskLow
	case "medium", "moderate", "med":
		return RiskMedium
	case "high", "major", "significant":
		return RiskHigh
	case "critical", "severe", "extreme":
		return RiskCritical
	}
	return RiskUnknown
}

// normalizeScore treats values in (0,1] as fractions and clamps to 0-100.
func normalizeScore(f float64) int {
	if math.IsNaN(f) {
		return 0
	}
	if f > 0 && f <= 1 {
		f *= 100
	}
	return int(math.Round(math.Max(0, math.Min(100, f))))
}

var severityPenalty = map[string]int{
	RiskLow:      5,
	RiskMedium:   10,
	RiskHigh:     20,
	RiskCritical: 30,
}

// ScoreFromIssues starts at 100 and subtracts a penalty per issue severity.
func ScoreFromIssues(issues []Issue) int {
	score := 100
	for _, is := range issues {
		score -= severityPenalty[is.Severity]
	}
	return max(score, 0)
}

func firstPresent(doc gjson.Result, keys []string) (gjson.Result, bool) {
	for _, k := range keys {
		if v := doc.Get(k); v.Exists() && v.Type != gjson.Null {
			return v, true
		}
	}
	return gjson.Result{}, false
}

func firstString(doc gjson.Result, keys []string) string {
	for _, k := range keys {
		if v := doc.Get(k); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func hasAny(doc gjson.Result, keys []string) bool {
	_, found := firstPresent(doc, keys)
	return found
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return strings.TrimSpace(s[:n]) + "..."
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
