// Package events provides the generic event infrastructure for evaluation
// event emission. It defines the Envelope type wrapping domain events with
// consistent metadata and the EventSink interface for event delivery.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope wraps evaluation events with consistent metadata for reliable
// downstream processing: routing by type, deduplication via idempotency
// keys, and correlation with the workflow execution that emitted them.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing and processing.
	// Examples: "evaluation.handoff_evaluated", "evaluation.pipeline_rolled_up".
	Type string `json:"type"`

	// Source identifies the component that emitted this event.
	Source string `json:"source"`

	// Version enables schema evolution, following semantic versioning.
	Version string `json:"version"`

	// Timestamp records when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey ensures exactly-once processing during retries.
	// Generated deterministically from workflow context and event content.
	IdempotencyKey string `json:"idempotency_key"`

	// WorkflowID identifies the workflow execution that triggered this
	// event, for correlation and debugging.
	WorkflowID string `json:"workflow_id"`

	// RunID distinguishes retries of the same workflow.
	RunID string `json:"run_id"`

	// Payload contains the event data as JSON; schema varies by Type.
	Payload json.RawMessage `json:"payload"`
}

// EventSink delivers events to downstream consumers. Implementations range
// from database outbox tables to message queues to simple log outputs.
//
// Sinks must tolerate duplicates (idempotency keys make replays no-ops)
// and return quickly; events matter for observability, not correctness,
// so callers never fail their primary operation on sink errors.
type EventSink interface {
	// Append adds an event to the sink with best-effort delivery.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink is a null EventSink for tests or when events are disabled.
type NoOpEventSink struct{}

// Append implements EventSink with no-op behavior.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error { return nil }

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink { return &NoOpEventSink{} }
