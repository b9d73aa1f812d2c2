package clauses

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/contractd/internal/logging"
	"go.uber.org/zap"
)

// FallbackExtractor tries Primary and falls back to Secondary when it
// fails, or returns nothing while document text is available.
type FallbackExtractor struct {
	Primary   Extractor
	Secondary Extractor
	Logger    *logging.Logger
}

// NewFallbackExtractor returns a remote-then-heuristic extractor.
func NewFallbackExtractor(primary, secondary Extractor, logger *logging.Logger) *FallbackExtractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FallbackExtractor{Primary: primary, Secondary: secondary, Logger: logger}
}

// Extract implements Extractor.
func (f *FallbackExtractor) Extract(ctx context.Context, in Input) (*Set, error) {
	logger := f.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	set, primaryErr := f.Primary.Extract(ctx, in)
	if primaryErr == nil && (len(set.Clauses) > 0 || strings.TrimSpace(in.Text) == "") {
		return set, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Secondary == nil {
		if primaryErr != nil {
			return nil, primaryErr
		}
		return set, nil
	}

	reason := "empty"
	if primaryErr != nil {
		reason = primaryErr.Error()
	}
	logger.Warn(ctx, "clause extraction falling back to heuristic", zap.String("reason", reason))

	fallback, err := f.Secondary.Extract(ctx, in)
	if err != nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("clause extraction failed: %w", errors.Join(primaryErr, err))
		}
		// Primary succeeded with zero clauses; keep that answer
		return set, nil
	}
	fallback.IngestionID = in.IngestionID
	fallback.Source = SourceHeuristic
	return fallback, nil
}
