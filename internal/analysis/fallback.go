package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/clauses"
)

type issueTemplate struct {
	title          string
	description    string
	severity       string
	recommendation string
}

var categoryTemplates = map[string]issueTemplate{
	clauses.CategoryConfidentiality: {
		title:          "Confidentiality obligations require review",
		description:    "The confidentiality clause defines what information is protected and how it may be used. Scope, exclusions and the survival period drive exposure.",
		severity:       RiskMedium,
		recommendation: "Confirm the definition of confidential information, the standard exclusions and how long obligations survive termination.",
	},
	clauses.CategoryTerm: {
		title:          "Agreement term and renewal",
		description:    "The term clause sets how long the agreement runs and whether it renews automatically.",
		severity:       RiskLow,
		recommendation: "Check the initial term, any automatic renewal and the notice window needed to prevent renewal.",
	},
	clauses.CategoryTermination: {
		title:          "Termination rights",
		description:    "Termination rights determine how either party can exit and what happens to obligations afterwards.",
		severity:       RiskMedium,
		recommendation: "Verify termination for convenience and for cause, cure periods and post-termination obligations.",
	},
	clauses.CategoryLiability: {
		title:          "Limitation of liability",
		description:    "Liability caps and exclusions allocate financial risk between the parties.",
		severity:       RiskHigh,
		recommendation: "Confirm the liability cap amount, carve-outs for confidentiality and data breaches and excluded damages.",
	},
	clauses.CategoryIndemnification: {
		title:          "Indemnification scope",
		description:    "Indemnities can shift third-party claim costs without a cap.",
		severity:       RiskHigh,
		recommendation: "Review which claims are covered, whether indemnities are capped and the defense procedure.",
	},
	clauses.CategoryGoverningLaw: {
		title:          "Governing law and jurisdiction",
		description:    "The chosen law and forum affect enforcement cost and outcome.",
		severity:       RiskLow,
		recommendation: "Confirm the governing law and venue are acceptable and consider arbitration where appropriate.",
	},
	clauses.CategoryDataProtection: {
		title:          "Data protection commitments",
		description:    "Data processing terms must meet applicable privacy law and cover sub-processors, transfers and breach notification.",
		severity:       RiskHigh,
		recommendation: "Check processing instructions, sub-processor approval, international transfer mechanisms and breach notification timelines.",
	},
	clauses.CategoryPayment: {
		title:          "Payment terms",
		description:    "Payment terms cover fees, invoicing schedule and consequences of late payment.",
		severity:       RiskLow,
		recommendation: "Confirm fee amounts, payment deadlines, late charges and any price escalation.",
	},
	clauses.CategoryIntellectualProperty: {
		title:          "Intellectual property ownership",
		description:    "IP terms decide who owns work product and what licenses are granted.",
		severity:       RiskMedium,
		recommendation: "Verify ownership of deliverables, pre-existing IP and the scope of any license grants.",
	},
}

// perspectiveSeverity overrides the template severity for a category when
// reviewing from a given side.
var perspectiveSeverity = map[string]map[string]string{
	"receiving_party": {
		clauses.CategoryConfidentiality: RiskHigh,
	},
	"disclosing_party": {
		clauses.CategoryConfidentiality: RiskMedium,
		clauses.CategoryTerm:            RiskMedium,
	},
	"customer": {
		clauses.CategoryLiability:   RiskCritical,
		clauses.CategoryTermination: RiskHigh,
	},
	"vendor": {
		clauses.CategoryIndemnification: RiskCritical,
		clauses.CategoryPayment:         RiskMedium,
	},
	"data_controller": {
		clauses.CategoryDataProtection: RiskCritical,
	},
	"data_processor": {
		clauses.CategoryLiability: RiskCritical,
	},
}

var criticalCategories = map[string][]string{
	"nda":     {clauses.CategoryConfidentiality, clauses.CategoryTerm},
	"dpa":     {clauses.CategoryDataProtection, clauses.CategoryLiability},
	"default": {clauses.CategoryTermination, clauses.CategoryLiability, clauses.CategoryGoverningLaw},
}

const genericRecommendation = "Have qualified counsel review the full contract before signing."

// ContractFamily folds contract type spellings into nda, dpa or default.
func ContractFamily(contractType string) string {
	t := strings.ToLower(strings.TrimSpace(contractType))
	t = strings.NewReplacer("-", "_", " ", "_").Replace(t)
	switch {
	case t == "nda" || strings.Contains(t, "non_disclosure") || strings.HasSuffix(t, "_nda") || strings.Contains(t, "confidentiality"):
		return "nda"
	case t == "dpa" || strings.Contains(t, "data_processing") || strings.HasSuffix(t, "_dpa"):
		return "dpa"
	}
	return "default"
}

// normalizePerspective folds spellings such as "Data Controller" and
// "data-controller" onto one key. The bare roles map to their DPA forms.
func normalizePerspective(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p = strings.NewReplacer("-", "_", " ", "_").Replace(p)
	switch p {
	case "controller", "processor":
		return "data_" + p
	}
	return p
}

// GenerateFallback builds a deterministic analysis from the extracted
// clauses when no AI backend produced one.
func GenerateFallback(req Request) *Result {
	res := &Result{
		IngestionID:  req.IngestionID,
		ReviewType:   req.ReviewType,
		ContractType: req.ContractType,
		Perspective:  req.Perspective,
		Source:       SourceFallback,
		Degraded:     true,
		GeneratedAt:  time.Now().UTC(),
	}
	if res.ReviewType == "" {
		res.ReviewType = DefaultReviewType
	}

	if len(req.Clauses) == 0 {
		res.Summary = "Automated analysis was unavailable and no clauses could be extracted from this contract, so no preliminary findings were produced."
		res.OverallRisk = RiskUnknown
		res.Score = 0
		res.Issues = []Issue{}
		res.Recommendations = []string{genericRecommendation}
		return res
	}

	overrides := perspectiveSeverity[normalizePerspective(req.Perspective)]
	present := make(map[string]bool)

	for _, c := range req.Clauses {
		if present[c.Category] {
			continue
		}
		present[c.Category] = true

		tmpl, ok := categoryTemplates[c.Category]
		if !ok {
			continue
		}
		sev := tmpl.severity
		if o, ok := overrides[c.Category]; ok {
			sev = o
		}
		res.Issues = append(res.Issues, Issue{
			ID:             fmt.Sprintf("issue-%d", len(res.Issues)+1),
			Title:          tmpl.title,
			Description:    tmpl.description,
			Severity:       sev,
			ClauseRef:      clauseRef(c),
			Recommendation: tmpl.recommendation,
		})
	}

	var missing []string
	for _, cat := range criticalCategories[ContractFamily(req.ContractType)] {
		if present[cat] {
			continue
		}
		missing = append(missing, cat)
		label := strings.ReplaceAll(cat, "_", " ")
		res.Issues = append(res.Issues, Issue{
			ID:             fmt.Sprintf("issue-%d", len(res.Issues)+1),
			Title:          "Missing " + label + " clause",
			Description:    fmt.Sprintf("No %s clause was found. Contracts of this type normally include one.", label),
			Severity:       RiskHigh,
			Recommendation: fmt.Sprintf("Add a %s clause or confirm it is covered elsewhere.", label),
		})
	}

	seen := make(map[string]bool)
	for _, is := range res.Issues {
		if is.Recommendation != "" && !seen[is.Recommendation] {
			seen[is.Recommendation] = true
			res.Recommendations = append(res.Recommendations, is.Recommendation)
		}
	}
	res.Recommendations = append(res.Recommendations, genericRecommendation)

	res.OverallRisk = HighestSeverity(res.Issues)
	res.Score = ScoreFromIssues(res.Issues)

	summary := fmt.Sprintf("Automated analysis was unavailable. This preliminary review covers %d extracted clauses", len(req.Clauses))
	if len(missing) > 0 {
		summary += fmt.Sprintf(" and flags %d missing critical clause(s)", len(missing))
	}
	res.Summary = summary + ". Overall risk is " + res.OverallRisk + "."
	return res
}

func clauseRef(c clauses.Clause) string {
	if c.Heading != "" {
		return c.Heading
	}
	return c.ID
}
