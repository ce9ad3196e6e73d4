package calls

import "time"

// CallRecord is one outbound call attempt.
//
// Invariants:
// - EndTime and DurationSeconds are set together, never independently, and
//   only when Status reaches a terminal value.
// - DurationSeconds is recomputed from EndTime - StartTime server-side;
//   provider-supplied durations are never trusted.
// - Records are never deleted (audit trail).
//
// Destination is a free-form dial string, not a foreign key: the callee is
// not necessarily a registered user.
type CallRecord struct {
	ID       string `json:"id" db:"id"`
	CallerID string `json:"caller_id" db:"caller_id"`

	Destination string `json:"destination" db:"destination"`

	// ProviderCallID is the provider's identifier for the placed call,
	// recorded after the provider accepts it. Status callbacks carrying a
	// different SID for this record are rejected.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Status Status `json:"status" db:"status"`

	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	// DurationSeconds is nil until the record reaches a terminal status.
	DurationSeconds *int `json:"duration,omitempty" db:"duration_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusRinging    Status = "ringing"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo encodes the state machine:
//
//	ringing     -> in-progress | failed
//	in-progress -> completed | failed
//
// Nothing leaves a terminal state.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusRinging:
		return next == StatusInProgress || next == StatusFailed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}
