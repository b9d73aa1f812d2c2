package http

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contractd/internal/analysis"
	"github.com/fyrsmithlabs/contractd/internal/config"
	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/fyrsmithlabs/contractd/internal/pipeline"
	"github.com/fyrsmithlabs/contractd/internal/services"
	"github.com/fyrsmithlabs/contractd/internal/store"
)

const analysisBody = `{"data":{"analysis":{"summary":"Standard mutual NDA.","overallRisk":"medium","score":74,"issues":[{"title":"Long survival","severity":"medium"}],"recommendations":["Shorten survival"]}}}`

const clausesBody = `{"clauses":[
	{"id":"c1","type":"confidentiality","title":"Confidential Information","text":"Each party shall keep information confidential."},
	{"id":"c2","type":"term","title":"Term","text":"Two years."}
]}`

// fakeSupabase answers the REST table and edge function calls a review makes.
type fakeSupabase struct {
	srv *httptest.Server

	mu       sync.Mutex
	statuses map[string]int
	replies  map[string]string
}

func newFakeSupabase(t *testing.T) *fakeSupabase {
	t.Helper()
	f := &fakeSupabase{
		statuses: make(map[string]int),
		replies: map[string]string{
			"/functions/v1/ingest-contract":  `{"success":true,"clausesCached":true}`,
			"/functions/v1/extract-clauses":  clausesBody,
			"/functions/v1/analyze-contract": analysisBody,
		},
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		status, reply := f.statuses[r.URL.Path], f.replies[r.URL.Path]
		f.mu.Unlock()

		if r.URL.Path == "/rest/v1/contract_ingestions" {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte("[" + string(body) + "]"))
			return
		}
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSupabase) fail(path string, status int, reply string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[path] = status
	f.replies[path] = reply
}

func testConfig(t *testing.T, supabaseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Supabase.URL = supabaseURL
	cfg.Supabase.AnonKey = config.Secret("anon-key")
	cfg.Supabase.ServiceRoleKey = config.Secret("service-key")
	cfg.Supabase.RateLimit = 1000
	cfg.Supabase.Burst = 100
	cfg.Analysis.FallbackModels = nil
	cfg.Analysis.MaxAttempts = 1
	cfg.Analysis.BaseBackoff = time.Millisecond
	cfg.Analysis.MaxBackoff = time.Millisecond
	cfg.Store.Path = filepath.Join(dir, "contractd.db")
	cfg.Pipeline.OutputDir = dir
	return cfg
}

type testServer struct {
	*Server
	supabase *fakeSupabase
	registry services.Registry
}

func setupTestServer(t *testing.T, mutate ...func(*config.Config, *Config)) *testServer {
	t.Helper()
	fake := newFakeSupabase(t)
	cfg := testConfig(t, fake.srv.URL)
	srvCfg := &Config{Host: "localhost", Port: 9191, Version: "test"}
	for _, m := range mutate {
		m(cfg, srvCfg)
	}

	reg, closeServices, err := services.Build(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeServices() })

	server, err := NewServer(reg, logging.NewNop(), srvCfg)
	require.NoError(t, err)
	return &testServer{Server: server, supabase: fake, registry: reg}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func ndaDocx(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		`<w:p><w:r><w:t>1. Confidential Information</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Each party may disclose confidential information for evaluation purposes only.</w:t></w:r></w:p>` +
		`</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// reviewRequest builds a multipart upload. An empty filename omits the file.
func reviewRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reviews", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func ndaFields() map[string]string {
	return map[string]string{
		"contractType":  "non_disclosure_agreement",
		"perspective":   "disclosing-party",
		"solutionId":    "nda",
		"solutionKey":   "nda",
		"solutionTitle": "Non-Disclosure Agreement",
	}
}

func jsonRequest(t *testing.T, method, target string, v any) *http.Request {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// runReview uploads the NDA fixture and returns the pipeline result.
func runReview(t *testing.T, s *testServer) pipeline.JobResult {
	t.Helper()
	rec := s.do(reviewRequest(t, "nda.docx", ndaDocx(t), ndaFields()))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res pipeline.JobResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.IngestionID)
	return res
}

func TestNewServer(t *testing.T) {
	reg := services.NewRegistry(services.Options{})

	t.Run("creates server with valid config", func(t *testing.T) {
		cfg := &Config{Host: "localhost", Port: 8080}

		server, err := NewServer(reg, logging.NewNop(), cfg)
		require.NoError(t, err)
		assert.NotNil(t, server.echo)
		assert.Equal(t, cfg, server.config)
		assert.Equal(t, "contractd", server.config.ServiceName)
		assert.Equal(t, 10*time.Second, server.config.ShutdownTimeout)
	})

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(reg, logging.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 9191, server.config.Port)
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(reg, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when registry is nil", func(t *testing.T) {
		_, err := NewServer(nil, logging.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "service registry cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "contractd", resp.Service)
}

func TestHandleStatus(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, server.supabase.srv.URL, resp.Services["supabase"])
	assert.Equal(t, stateOK, resp.Services["store"])
	assert.Equal(t, stateDisabled, resp.Services["events"])
	assert.Contains(t, resp.Models, "edge:openai-gpt-5-nano")
	require.NotNil(t, resp.Counts)
	assert.Zero(t, resp.Counts.Ingestions)
	assert.NotContains(t, resp.Services, "telemetry")
}

type telemetryState string

func (s telemetryState) Status() string { return string(s) }

func TestHandleStatus_StoreDisabled(t *testing.T) {
	server := setupTestServer(t, func(c *config.Config, h *Config) {
		c.Store.Enabled = false
		h.Telemetry = telemetryState("degraded")
	})

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, stateDisabled, resp.Services["store"])
	assert.Nil(t, resp.Counts)
	assert.Equal(t, "degraded", resp.Services["telemetry"])
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleReview(t *testing.T) {
	t.Run("runs the pipeline and records results", func(t *testing.T) {
		server := setupTestServer(t)
		res := runReview(t, server)

		assert.Equal(t, "nda.docx", res.Path)
		assert.Empty(t, res.Error)
		require.NotNil(t, res.Result)
		assert.Equal(t, "Standard mutual NDA.", res.Result.Summary)
		assert.Equal(t, analysis.SourceAI, res.Result.Source)
		assert.FileExists(t, res.Output)

		rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+res.IngestionID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var stored analysis.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
		assert.Equal(t, res.IngestionID, stored.IngestionID)
		assert.Equal(t, 74, stored.Score)

		rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/ingestions/"+res.IngestionID, nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var ing store.Ingestion
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ing))
		assert.Equal(t, "nda.docx", ing.OriginalName)
		assert.Equal(t, "non_disclosure_agreement", ing.ContractType)
	})

	t.Run("rejects invalid uploads", func(t *testing.T) {
		server := setupTestServer(t)

		tests := []struct {
			name     string
			filename string
			fields   map[string]string
			wantCode int
			wantBody string
		}{
			{"missing file", "", ndaFields(), http.StatusBadRequest, "file field is required"},
			{"missing contract type", "nda.docx", map[string]string{}, http.StatusBadRequest, "contractType field is required"},
			{"unsupported extension", "nda.txt", ndaFields(), http.StatusBadRequest, "unsupported-extension"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := server.do(reviewRequest(t, tt.filename, ndaDocx(t), tt.fields))
				assert.Equal(t, tt.wantCode, rec.Code)
				assert.Contains(t, rec.Body.String(), tt.wantBody)
			})
		}
	})

	t.Run("reports pipeline failures as bad gateway", func(t *testing.T) {
		server := setupTestServer(t)
		server.supabase.fail("/functions/v1/ingest-contract", http.StatusBadRequest, `{"error":"unreadable document"}`)

		rec := server.do(reviewRequest(t, "nda.docx", ndaDocx(t), ndaFields()))
		require.Equal(t, http.StatusBadGateway, rec.Code)

		var res pipeline.JobResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.NotEmpty(t, res.IngestionID)
		assert.True(t, strings.HasPrefix(res.Error, "ingest"), res.Error)
		assert.Nil(t, res.Result)
	})
}

func TestHandleAnalyze(t *testing.T) {
	t.Run("uses stored clauses when none are given", func(t *testing.T) {
		server := setupTestServer(t)
		res := runReview(t, server)

		// Force the deterministic fallback so the clauses in use show in the summary
		server.supabase.fail("/functions/v1/analyze-contract", http.StatusServiceUnavailable, `{"error":"overloaded"}`)

		rec := server.do(jsonRequest(t, http.MethodPost, "/api/v1/analyses", analysis.Request{
			IngestionID:  res.IngestionID,
			ContractType: "non_disclosure_agreement",
			ForceRefresh: true,
		}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var out analysis.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, analysis.SourceFallback, out.Source)
		assert.True(t, out.Degraded)
		assert.Contains(t, out.Summary, "covers 2 extracted clauses")
	})

	t.Run("serves cached analyses", func(t *testing.T) {
		server := setupTestServer(t)
		res := runReview(t, server)

		rec := server.do(jsonRequest(t, http.MethodPost, "/api/v1/analyses", analysis.Request{
			IngestionID:  res.IngestionID,
			ContractType: "non_disclosure_agreement",
		}))
		require.Equal(t, http.StatusOK, rec.Code)

		var out analysis.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, analysis.SourceCache, out.Source)
		assert.Equal(t, "Standard mutual NDA.", out.Summary)
	})

	t.Run("rejects invalid requests", func(t *testing.T) {
		server := setupTestServer(t)

		rec := server.do(jsonRequest(t, http.MethodPost, "/api/v1/analyses", map[string]string{}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		rec = server.do(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid request body")
	})

	t.Run("reports backend failures without fallback", func(t *testing.T) {
		server := setupTestServer(t, func(c *config.Config, _ *Config) {
			c.Analysis.FallbackEnabled = false
		})
		server.supabase.fail("/functions/v1/analyze-contract", http.StatusServiceUnavailable, `{"error":"overloaded"}`)

		rec := server.do(jsonRequest(t, http.MethodPost, "/api/v1/analyses", analysis.Request{
			IngestionID:  "ing-unknown",
			ContractType: "non_disclosure_agreement",
		}))
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Error)
	})
}

func TestHandleGetAnalysis_NotFound(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/ingestions/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListAnalyses(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp ListAnalysesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Analyses)

	res := runReview(t, server)

	rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Analyses, 1)
	assert.Equal(t, res.IngestionID, resp.Analyses[0].IngestionID)
	assert.Equal(t, "medium", resp.Analyses[0].OverallRisk)

	rec = server.do(httptest.NewRequest(http.MethodGet, "/api/v1/analyses?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStoreDisabledEndpoints(t *testing.T) {
	server := setupTestServer(t, func(c *config.Config, _ *Config) {
		c.Store.Enabled = false
	})

	for _, target := range []string{"/api/v1/analyses", "/api/v1/analyses/ing-1", "/api/v1/ingestions/ing-1"} {
		rec := server.do(httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestAuthentication(t *testing.T) {
	server := setupTestServer(t, func(_ *config.Config, s *Config) {
		s.AuthTokens = []string{"secret-token"}
	})

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = server.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec = server.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays public for load balancers
	rec = server.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware(t *testing.T) {
	server := setupTestServer(t)

	t.Run("request ID is set", func(t *testing.T) {
		rec := server.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	})

	t.Run("malformed client request ID is tolerated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "not valid; id")
		rec := server.do(req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown routes return 404", func(t *testing.T) {
		rec := server.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("body limit", func(t *testing.T) {
		limited := setupTestServer(t, func(_ *config.Config, s *Config) {
			s.BodyLimit = "1K"
		})
		req := jsonRequest(t, http.MethodPost, "/api/v1/analyses", map[string]string{
			"ingestionId": strings.Repeat("x", 4096),
		})
		rec := limited.do(req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestServerLifecycle(t *testing.T) {
	reg := services.NewRegistry(services.Options{})
	server, err := NewServer(reg, logging.NewNop(), &Config{Host: "127.0.0.1", Port: 0})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
