package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart EventType = "start"
	EventStop  EventType = "stop"
	EventError EventType = "error"
)

// Event is one lifecycle transition exported to external systems. It is an
// audit record, never a source of truth for runtime state.
type Event struct {
	Type       EventType `json:"type"`
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Version    string    `json:"version"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Close() error
}
