package history

import (
	"context"
	"time"
)

// EventType defines the kind of launch lifecycle event.
type EventType string

const (
	EventLaunchStarted       EventType = "launch_started"
	EventCollisionDetected   EventType = "collision_detected"
	EventInstanceTerminated  EventType = "instance_terminated"
	EventOwnershipClaimed    EventType = "ownership_claimed"
	EventOwnershipReleased   EventType = "ownership_released"
	EventLaunchExited        EventType = "launch_exited"
	EventRaceDetected        EventType = "race_detected"
	EventPersistenceDegraded EventType = "persistence_degraded"
)

// Record identifies the launch an event belongs to.
type Record struct {
	LaunchID string `json:"launch_id"`
	PID      int    `json:"pid"`
	BuildID  string `json:"build_id"`
	Version  string `json:"version,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Event represents a launch lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Querier is implemented by sinks that can read back recent events.
type Querier interface {
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Nop discards every event. Useful as a default when auditing is disabled.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }

// Multi fans out events to several sinks. Every sink is attempted; the first
// error is returned.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var first error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes the member sinks that support closing and returns the first
// error encountered.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
