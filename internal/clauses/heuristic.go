package clauses

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// DefaultMinSectionLength drops stray lines such as signature blocks.
const DefaultMinSectionLength = 40

var numberedHeading = regexp.MustCompile(`^(?:\d+(?:\.\d+)*\.?|[IVXLC]+\.|(?i:section|article|clause)\s+[\dIVXLC]+[.:]?)\s+\S`)

type keyword struct {
	re     *regexp.Regexp
	weight int
}

type categoryRule struct {
	category string
	keywords []keyword
}

func kw(pattern string, weight int) keyword {
	return keyword{re: regexp.MustCompile(`(?i)` + pattern), weight: weight}
}

// Order breaks ties: earlier rules win.
var categoryRules = []categoryRule{
	{CategoryConfidentiality, []keyword{
		kw(`\bconfidential`, 3), kw(`\bnon-?disclosure\b`, 3), kw(`\bproprietary information\b`, 2), kw(`\bdisclos`, 1), kw(`\btrade secrets?\b`, 2),
	}},
	{CategoryDataProtection, []keyword{
		kw(`\bpersonal data\b`, 3), kw(`\bdata protection\b`, 3), kw(`\bgdpr\b`, 3), kw(`\bsub-?processors?\b`, 2), kw(`\bdata subjects?\b`, 2), kw(`\bprocessing\b`, 1),
	}},
	{CategoryTermination, []keyword{
		kw(`\bterminat`, 3), kw(`\bfor cause\b`, 2), kw(`\bnotice of termination\b`, 2), kw(`\bmaterial breach\b`, 1),
	}},
	{CategoryTerm, []keyword{
		kw(`\bterm of (?:this|the) agreement\b`, 3), kw(`\beffective date\b`, 2), kw(`\brenew`, 2), kw(`\bduration\b`, 2), kw(`\b(?:years?|months?) from\b`, 1),
	}},
	{CategoryIndemnification, []keyword{
		kw(`\bindemnif`, 3), kw(`\bhold harmless\b`, 3), kw(`\bdefend\b`, 1),
	}},
	{CategoryLiability, []keyword{
		kw(`\blimitation of liability\b`, 3), kw(`\bliab`, 2), kw(`\bconsequential damages\b`, 2), kw(`\bin no event\b`, 1), kw(`\bcap\b`, 1),
	}},
	{CategoryGoverningLaw, []keyword{
		kw(`\bgoverning law\b`, 3), kw(`\bgoverned by\b`, 3), kw(`\bjurisdiction\b`, 2), kw(`\bvenue\b`, 1), kw(`\barbitration\b`, 1),
	}},
	{CategoryPayment, []keyword{
		kw(`\bpayment\b`, 3), kw(`\bfees?\b`, 2), kw(`\binvoice`, 2), kw(`\blate charges?\b`, 1), kw(`\bprice\b`, 1),
	}},
	{CategoryIntellectualProperty, []keyword{
		kw(`\bintellectual property\b`, 3), kw(`\bcopyright`, 2), kw(`\bpatent`, 2), kw(`\btrademark`, 2), kw(`\blicen[cs]e\b`, 1), kw(`\bownership\b`, 1),
	}},
}

// HeuristicExtractor splits document text into sections on numbered or
// upper-case headings and classifies each by keyword weight.
type HeuristicExtractor struct {
	MinSectionLength int
}

// NewHeuristicExtractor returns an extractor with default settings.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{MinSectionLength: DefaultMinSectionLength}
}

// Extract implements Extractor.
func (h *HeuristicExtractor) Extract(ctx context.Context, in Input) (*Set, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Text) == "" {
		return nil, ErrNoText
	}

	minLen := h.MinSectionLength
	if minLen <= 0 {
		minLen = DefaultMinSectionLength
	}

	set := &Set{IngestionID: in.IngestionID, Source: SourceHeuristic}
	for _, sec := range splitSections(in.Text) {
		if len(sec.body) < minLen {
			continue
		}
		set.Clauses = append(set.Clauses, Clause{
			ID:       fmt.Sprintf("clause-%d", len(set.Clauses)+1),
			Category: Categorize(sec.heading, sec.body),
			Heading:  sec.heading,
			Text:     sec.body,
		})
	}
	return set, nil
}

type section struct {
	heading string
	body    string
}

func splitSections(text string) []section {
	var (
		out     []section
		current section
		body    []string
	)
	flush := func() {
		current.body = strings.TrimSpace(strings.Join(body, "\n"))
		if current.heading != "" || current.body != "" {
			out = append(out, current)
		}
		current, body = section{}, nil
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if isHeading(line) {
			flush()
			current.heading = line
			// "1. Confidentiality. The parties agree..." keeps the body text
			if len(line) > 80 {
				body = append(body, line)
			}
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

func isHeading(line string) bool {
	if numberedHeading.MatchString(line) {
		return true
	}
	if len(line) > 80 {
		return false
	}
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters >= 4
}

// Categorize scores heading and body against the keyword rules. Heading
// matches count double. No match is general.
func Categorize(heading, body string) string {
	best, bestScore := CategoryGeneral, 0
	for _, rule := range categoryRules {
		score := 0
		for _, k := range rule.keywords {
			if k.re.MatchString(heading) {
				score += 2 * k.weight
			}
			score += k.weight * len(k.re.FindAllStringIndex(body, 5))
		}
		if score > bestScore {
			best, bestScore = rule.category, score
		}
	}
	return best
}
