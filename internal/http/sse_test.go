package http

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contractd/internal/config"
	"github.com/fyrsmithlabs/contractd/internal/events"
)

func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func setupEventsServer(t *testing.T) (*testServer, *httptest.Server) {
	t.Helper()
	ns := startTestNATSServer(t)
	server := setupTestServer(t, func(c *config.Config, _ *Config) {
		c.Events.Enabled = true
		c.Events.URL = ns.ClientURL()
	})
	require.NotNil(t, server.registry.NATS())

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts
}

func publish(t *testing.T, s *testServer, ingestionID, stage, status string) {
	t.Helper()
	require.NoError(t, s.registry.Events().Publish(context.Background(), events.Event{
		IngestionID: ingestionID,
		Stage:       stage,
		Status:      status,
		Timestamp:   time.Now().UTC(),
	}))
}

func TestHandleReviewEvents(t *testing.T) {
	server, ts := setupEventsServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/reviews/ing-1/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscription exists once headers are sent, and events share its connection
	publish(t, server, "ing-1", "extract-clauses", events.StatusCompleted)
	publish(t, server, "ing-2", "extract-clauses", events.StatusCompleted)
	publish(t, server, "ing-1", events.StageDone, events.StatusCompleted)

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lines = append(lines, line)
		}
	}

	require.Len(t, lines, 4, strings.Join(lines, "\n"))
	assert.Equal(t, "event: extract-clauses", lines[0])
	assert.Contains(t, lines[1], `"ingestionId":"ing-1"`)
	assert.Equal(t, "event: done", lines[2])
	assert.NotContains(t, strings.Join(lines, "\n"), "ing-2")
}

func TestHandleReviewEvents_AllReviews(t *testing.T) {
	server, ts := setupEventsServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	publish(t, server, "ing-1", events.StageDone, events.StatusCompleted)
	publish(t, server, "ing-2", "load", events.StatusFailed)

	reader := bufio.NewReader(resp.Body)
	var got []string
	for len(got) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			got = append(got, line)
		}
	}
	assert.Contains(t, got[0], `"ingestionId":"ing-1"`)
	assert.Contains(t, got[1], `"ingestionId":"ing-2"`)
}

func TestHandleReviewEvents_Disabled(t *testing.T) {
	server := setupTestServer(t)

	rec := server.do(httptest.NewRequest(http.MethodGet, "/api/v1/reviews/ing-1/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
