package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"

	"github.com/fyrsmithlabs/contractd/internal/events"
)

// sseHeartbeat keeps idle streams open through proxies.
var sseHeartbeat = 30 * time.Second

// handleReviewEvents streams review events via Server-Sent Events.
//
// With an ingestion id the stream follows that review and closes after its
// done event. Without one it follows every review until the client
// disconnects.
//
// Example:
//
//	GET /api/v1/reviews/{ingestionId}/events
//
//	event: extract-clauses
//	data: {"id":"...","ingestionId":"...","stage":"extract-clauses","status":"completed"}
//
//	event: done
//	data: {"id":"...","ingestionId":"...","stage":"done","status":"completed"}
func (s *Server) handleReviewEvents(c echo.Context) error {
	nc := s.services.NATS()
	if nc == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "events are disabled")
	}
	ingestionID := c.Param("ingestionId")

	// Subscribe before the headers go out so a failure can still be reported
	msgChan := make(chan *nats.Msg, 64)
	sub, err := nc.ChanSubscribe(events.Wildcard(ingestionID), msgChan)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	// Set SSE headers
	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	c.Response().WriteHeader(http.StatusOK)
	c.Response().Flush()
	defer s.metrics.trackStream(c.Request().Context())()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			var e events.Event
			if err := json.Unmarshal(msg.Data, &e); err != nil {
				continue
			}

			fmt.Fprintf(c.Response(), "event: %s\n", e.Stage)
			fmt.Fprintf(c.Response(), "data: %s\n\n", msg.Data)
			c.Response().Flush()

			if ingestionID != "" && e.Stage == events.StageDone {
				return nil
			}

		case <-ticker.C:
			fmt.Fprintf(c.Response(), ": heartbeat\n\n")
			c.Response().Flush()

		case <-c.Request().Context().Done():
			// Client disconnected
			return nil
		}
	}
}
