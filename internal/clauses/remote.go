package clauses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/supabase"
	"github.com/tidwall/gjson"
)

// FunctionCaller is the subset of the Supabase client used for extraction.
type FunctionCaller interface {
	ExtractClauses(ctx context.Context, req supabase.ExtractRequest, timeout time.Duration) ([]byte, error)
}

// RemoteExtractor calls the extract-clauses edge function.
type RemoteExtractor struct {
	Client  FunctionCaller
	Timeout time.Duration
}

// NewRemoteExtractor creates a remote extractor.
func NewRemoteExtractor(client FunctionCaller, timeout time.Duration) *RemoteExtractor {
	return &RemoteExtractor{Client: client, Timeout: timeout}
}

// Extract implements Extractor.
func (r *RemoteExtractor) Extract(ctx context.Context, in Input) (*Set, error) {
	body, err := r.Client.ExtractClauses(ctx, supabase.ExtractRequest{
		IngestionID:  in.IngestionID,
		ContractType: in.ContractType,
		ForceRefresh: in.ForceRefresh,
	}, r.Timeout)
	if err != nil {
		return nil, err
	}

	set, err := ParseRemote(body)
	if err != nil {
		return nil, err
	}
	set.IngestionID = in.IngestionID
	return set, nil
}

var (
	clauseArrayPaths = []string{"clauses", "data.clauses", "result.clauses"}
	categoryKeys     = []string{"type", "category", "clause_type"}
	headingKeys      = []string{"title", "heading", "name"}
	textKeys         = []string{"text", "content", "body"}
)

// ParseRemote normalizes an extract-clauses response. The clause array may
// be at the top level or under data or result, and item fields go by
// several names.
func ParseRemote(body []byte) (*Set, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("extract-clauses: invalid JSON response")
	}
	doc := gjson.ParseBytes(body)

	var arr gjson.Result
	if doc.IsArray() {
		arr = doc
	} else {
		for _, p := range clauseArrayPaths {
			if v := doc.Get(p); v.IsArray() {
				arr = v
				break
			}
		}
	}
	if !arr.Exists() {
		if msg := doc.Get("error").String(); msg != "" {
			return nil, fmt.Errorf("extract-clauses: %s", msg)
		}
		return nil, fmt.Errorf("extract-clauses: response has no clause array")
	}

	set := &Set{
		Source: SourceRemote,
		Cached: doc.Get("cached").Bool() || doc.Get("clausesCached").Bool(),
	}
	n := 0
	arr.ForEach(func(_, item gjson.Result) bool {
		n++
		c := Clause{
			ID:       item.Get("id").String(),
			Category: normalizeCategory(firstString(item, categoryKeys)),
			Heading:  firstString(item, headingKeys),
			Text:     firstString(item, textKeys),
		}
		if item.Type == gjson.String {
			c.Text = item.String()
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("clause-%d", n)
		}
		set.Clauses = append(set.Clauses, c)
		return true
	})
	return set, nil
}

func firstString(item gjson.Result, keys []string) string {
	if !item.IsObject() {
		return ""
	}
	for _, k := range keys {
		if v := item.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func normalizeCategory(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "":
		return CategoryGeneral
	case "governing", "jurisdiction", "choice_of_law":
		return CategoryGoverningLaw
	case "limitation_of_liability":
		return CategoryLiability
	case "indemnity":
		return CategoryIndemnification
	case "ip":
		return CategoryIntellectualProperty
	case "privacy", "data_privacy", "gdpr":
		return CategoryDataProtection
	case "fees", "payment_terms":
		return CategoryPayment
	case "duration":
		return CategoryTerm
	}
	return s
}
