// Package events publishes review lifecycle events over NATS.
//
// Events are published as JSON on the subject
//
//	reviews.{ingestion_id}.{stage}
//
// so a follower can subscribe to reviews.{ingestion_id}.* and stop on the
// done stage.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/contractd/internal/logging"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is the first token of every review subject.
const SubjectPrefix = "reviews"

// StageDone marks the last event of a review.
const StageDone = "done"

// Event statuses.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// pendingID stands in for the ingestion id before one is assigned.
const pendingID = "pending"

// Event is one step of a review.
type Event struct {
	ID          string    `json:"id"`
	IngestionID string    `json:"ingestionId"`
	Stage       string    `json:"stage"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Subject returns the subject for an ingestion and stage.
func Subject(ingestionID, stage string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, token(ingestionID), token(stage))
}

// Wildcard returns the subject matching every event of ingestionID, or of
// all reviews when ingestionID is empty.
func Wildcard(ingestionID string) string {
	if ingestionID == "" {
		return SubjectPrefix + ".>"
	}
	return SubjectPrefix + "." + token(ingestionID) + ".*"
}

// token makes s safe as a single subject token.
func token(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return pendingID
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}

// NATSPublisher publishes events on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	logger *logging.Logger
}

// NewNATSPublisher creates a publisher on nc.
func NewNATSPublisher(nc *nats.Conn, logger *logging.Logger) *NATSPublisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSPublisher{nc: nc, logger: logger.Named("events")}
}

// Publish implements Publisher. ID and Timestamp are filled in when empty.
func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := Subject(e.IngestionID, e.Stage)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Stage, err)
	}
	p.logger.Trace(ctx, "event published",
		zap.String("subject", subject),
		zap.String("status", e.Status))
	return nil
}

// Subscribe calls handler for every event of ingestionID, or of all
// reviews when it is empty, until the returned subscription is drained or
// unsubscribed. Malformed messages are skipped.
func Subscribe(nc *nats.Conn, ingestionID string, handler func(Event)) (*nats.Subscription, error) {
	subject := Wildcard(ingestionID)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return
		}
		handler(e)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Connect dials NATS with the reconnect settings used by the server and CLI.
func Connect(url string, logger *logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("contractd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "nats disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return nc, nil
}
