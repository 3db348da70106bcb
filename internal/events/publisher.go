// Package events publishes delay outcome events to Google Cloud Pub/Sub.
//
// Outcome publication is best-effort and decoupled from request handling: a
// failed publish is logged and counted but never changes the response the
// client sees, and the publish context is detached from the request context
// so a cancelled request can still report its own cancellation.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartpcr/pass-cancel/internal/metrics"
)

// Publisher defines the interface for publishing outcome events
type Publisher interface {
	Publish(ctx context.Context, data interface{}, attributes map[string]string) (string, error)
	Close() error
}

// OutcomeEvent describes how a single delay request ended.
type OutcomeEvent struct {
	RequestID  string    `json:"request_id"`
	Server     string    `json:"server"`
	Variant    string    `json:"variant"`
	Path       string    `json:"path"`
	Outcome    string    `json:"outcome"`
	Status     int       `json:"status"`
	Seconds    int       `json:"seconds"`
	DurationMS int64     `json:"duration_ms"`
	Cause      string    `json:"cause,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Attributes returns the message attributes used for subscriber-side
// filtering.
func (e OutcomeEvent) Attributes() map[string]string {
	return map[string]string{
		"outcome": e.Outcome,
		"server":  e.Server,
		"variant": e.Variant,
	}
}

// publishTimeout bounds each outcome publish independently of the request
// that produced it.
const publishTimeout = 2 * time.Second

// Emit publishes an outcome event. The publish runs against a fresh context
// so that events describing cancelled requests are not themselves cancelled.
// Errors are logged and counted, never returned; outcome publication must
// not affect request handling.
func Emit(pub Publisher, logger *slog.Logger, event OutcomeEvent) {
	if pub == nil {
		metrics.RecordOutcomeEvent("skipped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	msgID, err := pub.Publish(ctx, event, event.Attributes())
	if err != nil {
		metrics.RecordOutcomeEvent("failed")
		logger.Warn("failed to publish outcome event",
			"error", err,
			"request_id", event.RequestID,
			"outcome", event.Outcome,
		)
		return
	}

	metrics.RecordOutcomeEvent("published")
	logger.Debug("published outcome event",
		"message_id", msgID,
		"request_id", event.RequestID,
		"outcome", event.Outcome,
	)
}
