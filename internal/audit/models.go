package audit

import "time"

// Event is an immutable, append-only record of call lifecycle activity.
//
// Invariants:
// - Events are never updated or deleted.
// - Capture is best-effort; critical flows must not block on audit failures.
//
// Storage recommendation (Postgres):
// - Table call_events with an INSERT-only policy.
// - Optional: partition by time for retention.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the lifecycle category of the record.
	Type EventType `json:"type" db:"type"`

	// CallID references the call record this event belongs to.
	CallID string `json:"call_id" db:"call_id"`

	// ActorUserID is the authenticated user causing the event, when there
	// is one. Provider callbacks have no actor.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`

	// IPAddress captures the remote client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details (e.g. raw provider payloads).
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallInitiated     EventType = "call_initiated"
	EventTypeProviderFailure   EventType = "provider_failure"
	EventTypeRoutingServed     EventType = "routing_served"
	EventTypeStatusTransition  EventType = "status_transition"
	EventTypeTerminalDuplicate EventType = "terminal_duplicate_ignored"
)
