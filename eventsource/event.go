// Package eventsource provides an append-only event store for contract
// events. Each contract's events form a stream keyed by the contract
// address, with optimistic concurrency on append. Two backends are
// provided: an in-memory store for tests and short-lived harness runs,
// and a SQLite store for persistent deployments.
package eventsource

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is a single stored record.
type Event struct {
	// ID is a unique event identifier.
	ID string `json:"id"`

	// Stream groups events by emitting contract.
	Stream string `json:"stream"`

	// Type is the event name (Transfer, Approval, Buy, Finalize, ...).
	Type string `json:"type"`

	// Version is the event's position in its stream, starting at 0.
	// Assigned by the store on append.
	Version int `json:"version"`

	// Timestamp records when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Data holds the JSON-encoded event payload.
	Data json.RawMessage `json:"data,omitempty"`
}

// NewEvent creates an event with a fresh ID and encoded payload.
func NewEvent(stream, eventType string, data any) (*Event, error) {
	e := &Event{
		ID:        uuid.New().String(),
		Stream:    stream,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode event data: %w", err)
		}
		e.Data = encoded
	}
	return e, nil
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}
