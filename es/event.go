package es

import (
	"encoding/json"
	"time"
)

// Event is a domain fact to be appended to an entity's log. Data is marshaled
// to JSON by the store on append.
type Event struct {
	// Type is the event type tag, e.g. "judge-created".
	Type string

	// Data is the event payload.
	Data any
}

// Envelope is one stored event. An entity's live state is always the fold of
// its envelopes, ordered by Seq, over an empty state.
type Envelope struct {
	// GlobalSeq is the store-wide position of the event, assigned on append.
	// It orders events across entities for subscription delivery.
	GlobalSeq int64 `json:"globalSeq"`

	// EntityType groups logs by entity kind, e.g. "judges".
	EntityType string `json:"entityType"`

	// EntityID identifies the entity instance the event belongs to.
	EntityID string `json:"entityId"`

	// Seq is the 1-based position of the event within its entity's log.
	Seq int `json:"seq"`

	// EventType is the event type tag.
	EventType string `json:"eventType"`

	// Data is the JSON-encoded event payload.
	Data json.RawMessage `json:"data"`

	// RecordedAt is when the event was appended.
	RecordedAt time.Time `json:"recordedAt"`
}

// DecodeData unmarshals the envelope payload into v.
func (e Envelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}
