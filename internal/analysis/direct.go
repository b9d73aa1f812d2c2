package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/supabase"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// maxPromptClauseChars bounds how much clause text goes into one prompt.
const maxPromptClauseChars = 24000

// maxResponseTokens leaves room for a full issue list.
const maxResponseTokens = 4096

// DirectConfig configures the OpenAI-compatible backend.
type DirectConfig struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// DirectBackend asks an OpenAI-compatible model for the analysis JSON
// directly, bypassing the edge functions.
type DirectBackend struct {
	llm     llms.Model
	model   string
	timeout time.Duration
}

// NewDirectBackend creates a langchaingo OpenAI client for cfg.
func NewDirectBackend(cfg DirectConfig) (*DirectBackend, error) {
	if cfg.Model == "" {
		return nil, errors.New("direct backend model required")
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create direct LLM client: %w", err)
	}
	return NewDirectBackendWithModel(llm, cfg.Model, cfg.Timeout), nil
}

// NewDirectBackendWithModel wraps an existing llms.Model.
func NewDirectBackendWithModel(llm llms.Model, model string, timeout time.Duration) *DirectBackend {
	return &DirectBackend{llm: llm, model: model, timeout: timeout}
}

// Name implements Backend.
func (d *DirectBackend) Name() string {
	return "direct"
}

// Model is the model the backend was configured with.
func (d *DirectBackend) Model() string {
	return d.model
}

// Analyze implements Backend. The model argument is informational; the
// client is bound to its configured model.
func (d *DirectBackend) Analyze(ctx context.Context, req Request, _ string) ([]byte, error) {
	if len(req.Clauses) == 0 {
		// Without clause text the model would be guessing
		return nil, errors.New("direct analysis requires extracted clauses")
	}
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, d.llm, BuildPrompt(req),
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(maxResponseTokens),
	)
	if err != nil {
		// langchaingo does not expose status codes; attempts are bounded anyway
		return nil, supabase.Retryable(fmt.Errorf("direct llm: %w", err))
	}
	return []byte(out), nil
}

// BuildPrompt renders the analysis instructions and clauses.
func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("You are a contract review assistant. Analyze the contract clauses below")
	fmt.Fprintf(&b, " for a %s review of a %s contract", reviewTypeOrDefault(req.ReviewType), req.ContractType)
	if req.Perspective != "" {
		fmt.Fprintf(&b, " from the perspective of the %s", strings.ReplaceAll(req.Perspective, "_", " "))
	}
	if req.Solution.Title != "" {
		fmt.Fprintf(&b, " in the context of %q", req.Solution.Title)
	}
	b.WriteString(".\n\nRespond with a single JSON object with these fields:\n")
	b.WriteString(`{"summary": string, "overallRisk": "low"|"medium"|"high"|"critical", "score": 0-100, `)
	b.WriteString(`"issues": [{"title": string, "description": string, "severity": "low"|"medium"|"high"|"critical", "clauseRef": string, "recommendation": string}], `)
	b.WriteString(`"recommendations": [string]}`)
	b.WriteString("\n\nClauses:\n")

	used := 0
	for _, c := range req.Clauses {
		entry := fmt.Sprintf("\n[%s] %s (%s)\n%s\n", c.ID, c.Heading, c.Category, c.Text)
		if used+len(entry) > maxPromptClauseChars {
			b.WriteString("\n[remaining clauses omitted]\n")
			break
		}
		b.WriteString(entry)
		used += len(entry)
	}
	return b.String()
}

func reviewTypeOrDefault(rt string) string {
	if rt == "" {
		return DefaultReviewType
	}
	return rt
}
