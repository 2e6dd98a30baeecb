// Package kafka carries the screening run events between the API server
// and the workers.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/MorphoScreen/pkg/errors"
	"github.com/turtacn/MorphoScreen/pkg/types/common"
)

const (
	TopicRunRequested = "screen.run.requested"
	TopicRunCompleted = "screen.run.completed"
	TopicRunFailed    = "screen.run.failed"
)

const schemaVersion = "1.0"

// EventEnvelope standardizes run event messages.
type EventEnvelope struct {
	EventID       string            `json:"event_id"`
	EventType     string            `json:"event_type"`
	Source        string            `json:"source"`
	Timestamp     time.Time         `json:"timestamp"`
	SchemaVersion string            `json:"schema_version"`
	Payload       json.RawMessage   `json:"payload"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RunRequestedPayload asks a worker to execute a run.
type RunRequestedPayload struct {
	RunID         common.ID `json:"run_id"`
	Screen        string    `json:"screen"`
	ProfileObject string    `json:"profile_object"`
	RequestedAt   time.Time `json:"requested_at"`
}

// RunCompletedPayload announces a finished run.
type RunCompletedPayload struct {
	RunID       common.ID `json:"run_id"`
	Screen      string    `json:"screen"`
	Compounds   int       `json:"compounds"`
	Excluded    int       `json:"excluded"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	CompletedAt time.Time `json:"completed_at"`
}

// RunFailedPayload announces a failed run with its error code.
type RunFailedPayload struct {
	RunID    common.ID `json:"run_id"`
	Screen   string    `json:"screen"`
	Code     string    `json:"code"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// NewEnvelope wraps a payload for publishing.
func NewEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "encode event payload")
	}
	return &EventEnvelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
		Payload:       raw,
	}, nil
}

// DecodePayload unmarshals the envelope payload into dest.
func (e *EventEnvelope) DecodePayload(dest interface{}) error {
	if err := json.Unmarshal(e.Payload, dest); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "decode event payload")
	}
	return nil
}
