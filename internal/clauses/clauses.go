// Package clauses extracts contract clauses remotely through the
// extract-clauses edge function, with a local heuristic fallback.
package clauses

import (
	"context"
	"errors"
)

// Sources of a clause set.
const (
	SourceRemote    = "remote"
	SourceHeuristic = "heuristic"
	SourceStore     = "store"
)

// Clause categories.
const (
	CategoryConfidentiality      = "confidentiality"
	CategoryTerm                 = "term"
	CategoryTermination          = "termination"
	CategoryLiability            = "liability"
	CategoryIndemnification      = "indemnification"
	CategoryGoverningLaw         = "governing_law"
	CategoryDataProtection       = "data_protection"
	CategoryPayment              = "payment"
	CategoryIntellectualProperty = "intellectual_property"
	CategoryGeneral              = "general"
)

// ErrNoText is returned by extractors that need document text when none
// was supplied.
var ErrNoText = errors.New("no document text available")

// Clause is one section of a contract.
type Clause struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Heading  string `json:"heading,omitempty"`
	Text     string `json:"text"`
}

// Set is the result of an extraction.
type Set struct {
	IngestionID string   `json:"ingestionId"`
	Clauses     []Clause `json:"clauses"`
	Source      string   `json:"source"`
	Cached      bool     `json:"cached,omitempty"`
}

// Categories returns the distinct categories in order of first appearance.
func (s *Set) Categories() []string {
	if s == nil {
		return nil
	}
	seen := make(map[string]bool, len(s.Clauses))
	out := make([]string, 0, len(s.Clauses))
	for _, c := range s.Clauses {
		if !seen[c.Category] {
			seen[c.Category] = true
			out = append(out, c.Category)
		}
	}
	return out
}

// Input describes what to extract.
type Input struct {
	IngestionID  string
	ContractType string
	ForceRefresh bool
	// Text is the plain document text when available locally.
	Text string
}

// Extractor turns a contract into clauses.
type Extractor interface {
	Extract(ctx context.Context, in Input) (*Set, error)
}
