package audit

import "time"

// Event is an immutable, append-only audit log record of one session
// lifecycle or error event.
//
// Invariants:
// - Events are never updated or deleted.
// - Type is required; it is the bus event name.
// - Audit is best-effort; never block a live call on audit failures.
//
// Storage: docstore collection audit_events, insert-only.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`

	// Session identifiers, when known at emit time.
	Channel string `json:"channel,omitempty"`
	UID     int    `json:"uid,omitempty"`

	// ErrorType is the discriminator of error events.
	ErrorType string `json:"error_type,omitempty"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty"`

	// Metadata is the event payload as JSON.
	Metadata string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Collection is the docstore collection audit events are appended to.
const Collection = "audit_events"
