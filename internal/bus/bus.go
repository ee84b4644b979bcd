// Package bus publishes analysis lifecycle events so other services can
// react to completed or rejected scoresheet analyses.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler consumes one event. Returning an error is recorded but never
// fails the publish that triggered it.
type Handler func(ctx context.Context, event Event) error

// Bus is the publish/subscribe surface shared by the in-memory and Kafka
// implementations.
type Bus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}

// Event is the envelope carried on every topic.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Type mirrors the topic the event was published on.
	Type string `json:"type"`

	// Source names the publishing service.
	Source string `json:"source"`

	// Timestamp is the publish time in Unix seconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID groups the lifecycle events of one analysis run
	// (requested, completed or failed all carry the same analysis ID).
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload is the topic-specific body.
	Payload any `json:"payload"`
}

// NewEvent stamps a payload with a fresh ID and the current time.
func NewEvent(eventType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    source,
		Timestamp: time.Now().Unix(),
		Payload:   payload,
	}
}

// Topics for the analysis lifecycle.
const (
	// TopicAnalysisRequested is published when an analysis is accepted.
	TopicAnalysisRequested = "analysis.requested"

	// TopicAnalysisCompleted is published when every voting system has run.
	TopicAnalysisCompleted = "analysis.completed"

	// TopicAnalysisFailed is published when the scoresheet is rejected or
	// the run fails as a whole.
	TopicAnalysisFailed = "analysis.failed"
)
