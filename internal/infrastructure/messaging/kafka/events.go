// Package kafka carries catalog refresh events: rule tables and snapshots
// published by the ingestion side are announced on one topic and applied by
// every engine replica.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/CodeLink-Engine/pkg/errors"
)

// Event types.
const (
	EventRulesPublished    = "rules_published"
	EventSnapshotPublished = "snapshot_published"
	EventEmbeddingsRotated = "embeddings_rotated"
)

// schemaVersion is the envelope version this package writes.
const schemaVersion = "v1"

// RefreshEvent is the envelope on the refresh topic.
type RefreshEvent struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
	SchemaVersion string    `json:"schema_version"`
	// Version is the published artifact's version label.
	Version string `json:"version,omitempty"`
	// ObjectKey locates the artifact in object storage; empty means the
	// consumer's configured default.
	ObjectKey string `json:"object_key,omitempty"`
	// Model names the embedding model for EventEmbeddingsRotated.
	Model string `json:"model,omitempty"`
}

// NewRefreshEvent stamps a new event.
func NewRefreshEvent(eventType, source string) *RefreshEvent {
	return &RefreshEvent{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: schemaVersion,
	}
}

// Encode marshals the event.
func (e *RefreshEvent) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "failed to marshal refresh event")
	}
	return b, nil
}

// DecodeRefreshEvent parses and validates an event.
func DecodeRefreshEvent(data []byte) (*RefreshEvent, error) {
	var e RefreshEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Wrap(err, errors.CodeSerialization, "malformed refresh event")
	}
	if e.EventType == "" {
		return nil, errors.InvalidParam("refresh event has no event_type")
	}
	return &e, nil
}
