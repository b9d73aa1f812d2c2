// Package supabase is a small client for the Supabase REST API and the
// contract-review edge functions.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultRateLimit = 5
	defaultBurst     = 5
	defaultTimeout   = 60 * time.Second
	maxResponseBytes = 16 << 20
)

// Config configures a Client.
type Config struct {
	URL        string
	AnonKey    string
	ServiceKey string
	RateLimit  float64 // requests per second
	Burst      int
	// RecordTimeout bounds REST calls. Edge function timeouts are per call.
	RecordTimeout time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
}

// Client talks to one Supabase project.
type Client struct {
	baseURL       string
	anonKey       string
	serviceKey    string
	recordTimeout time.Duration
	httpClient    *http.Client
	limiter       *rate.Limiter
	logger        *logging.Logger
}

// New creates a client. The URL has any trailing slash removed.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, errors.New("supabase url required")
	}

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	recordTimeout := cfg.RecordTimeout
	if recordTimeout <= 0 {
		recordTimeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// Per-call deadlines come from the context
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Client{
		baseURL:       base,
		anonKey:       cfg.AnonKey,
		serviceKey:    cfg.ServiceKey,
		recordTimeout: recordTimeout,
		httpClient:    httpClient,
		limiter:       rate.NewLimiter(rate.Limit(limit), burst),
		logger:        logger.Named("supabase"),
	}, nil
}

// BaseURL returns the project URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// InsertIngestion creates a contract_ingestions row with the service key and
// returns the stored representation.
func (c *Client) InsertIngestion(ctx context.Context, rec IngestionRecord) (*IngestionRecord, error) {
	if c.serviceKey == "" {
		return nil, errors.New("supabase service role key required to insert ingestion records")
	}

	ctx, cancel := context.WithTimeout(ctx, c.recordTimeout)
	defer cancel()

	// A retry after a lost response must not insert a second row.
	headers := map[string]string{
		"Authorization": "Bearer " + c.serviceKey,
		"apikey":        c.serviceKey,
		"Prefer":        "return=representation,resolution=ignore-duplicates",
	}
	body, err := c.post(ctx, IngestionsTable, "/rest/v1/"+IngestionsTable+"?on_conflict=id", headers, rec)
	if err != nil {
		return nil, err
	}

	// PostgREST returns an array for return=representation; an ignored
	// duplicate comes back empty
	var rows []IngestionRecord
	if err := json.Unmarshal(body, &rows); err == nil && len(rows) > 0 {
		return &rows[0], nil
	}
	var row IngestionRecord
	if err := json.Unmarshal(body, &row); err == nil && row.ID != "" {
		return &row, nil
	}
	return &rec, nil
}

// InvokeFunction calls an edge function with the anon key. The raw body is
// returned and, when out is non-nil, decoded into it. A zero timeout
// leaves the deadline to ctx.
func (c *Client) InvokeFunction(ctx context.Context, name string, payload, out any, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	headers := map[string]string{}
	if c.anonKey != "" {
		headers["Authorization"] = "Bearer " + c.anonKey
		headers["apikey"] = c.anonKey
	}

	start := time.Now()
	body, err := c.post(ctx, name, "/functions/v1/"+name, headers, payload)
	if err != nil {
		c.logger.Warn(ctx, "edge function failed",
			zap.String("function", name),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("retryable", IsRetryable(err)),
			zap.Error(err))
		return nil, err
	}
	c.logger.Debug(ctx, "edge function completed",
		zap.String("function", name),
		zap.Duration("duration", time.Since(start)),
		zap.Int("bytes", len(body)))

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return body, fmt.Errorf("%s: failed to parse response: %w", name, err)
		}
	}
	return body, nil
}

// Ingest calls ingest-contract.
func (c *Client) Ingest(ctx context.Context, req IngestRequest, timeout time.Duration) (*IngestResponse, error) {
	var resp IngestResponse
	if _, err := c.InvokeFunction(ctx, FunctionIngestContract, req, &resp, timeout); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExtractClauses calls extract-clauses and returns the raw body.
func (c *Client) ExtractClauses(ctx context.Context, req ExtractRequest, timeout time.Duration) ([]byte, error) {
	return c.InvokeFunction(ctx, FunctionExtractClauses, req, nil, timeout)
}

// AnalyzeContract calls analyze-contract and returns the raw body.
func (c *Client) AnalyzeContract(ctx context.Context, req AnalyzeRequest, timeout time.Duration) ([]byte, error) {
	return c.InvokeFunction(ctx, FunctionAnalyzeContract, req, nil, timeout)
}

// Ping checks the project is reachable. Any HTTP response counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/rest/v1/", nil)
	if err != nil {
		return err
	}
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("supabase unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) post(ctx context.Context, name, path string, headers map[string]string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Includes the per-call timeout. Caller cancellation is checked by
		// the retry loop before it looks at retryability.
		return nil, &retryableError{err: fmt.Errorf("%s: request failed: %w", name, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("%s: failed to read response: %w", name, err)}
	}

	c.logger.Trace(ctx, "supabase response",
		zap.String("function", name),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FunctionError{Function: name, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
