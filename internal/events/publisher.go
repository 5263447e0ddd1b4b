package events

import (
	"ontrak/internal/domain"

	"github.com/google/uuid"
)

// EventType identifies the kind of event carried by an envelope.
type EventType string

const (
	// EventScheduleUpdated carries the full updated ScheduleSession.
	// Consumers must treat each delivery as a complete-state snapshot, not a
	// diff; delivery is at-least-once with no cross-subscriber ordering.
	EventScheduleUpdated EventType = "schedule:updated"
)

// Event is the envelope broadcast to listeners.
type Event struct {
	ID      string      `json:"id"`
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// Publisher broadcasts events to interested listeners. Publish is
// fire-and-forget: no acknowledgment, no error to handle. It is injected
// into the schedule service so tests can substitute a recording or no-op
// implementation.
type Publisher interface {
	Publish(event Event)
}

// ScheduleUpdated builds the envelope for a mutated session.
func ScheduleUpdated(session *domain.ScheduleSession) Event {
	return Event{
		ID:      uuid.NewString(),
		Type:    EventScheduleUpdated,
		Payload: session,
	}
}

// NopPublisher discards every event. Useful for tests and tooling.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
