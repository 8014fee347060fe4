package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is one unit of inbound work drawn from the queue.
// It is immutable once enqueued: the pipeline never mutates an event,
// retries resend the identical value.
type Event struct {
	// ID uniquely identifies the event for logging and deduplication.
	ID string `json:"id"`

	// Type is an opaque tag assigned by the ingress (e.g. "message",
	// "callback"). The pipeline does not interpret it.
	Type string `json:"type"`

	// UserID identifies the originating user. Conversation state is keyed
	// by this value.
	UserID string `json:"user_id"`

	// Payload is the raw inbound data. The pipeline treats it as opaque.
	Payload []byte `json:"payload,omitempty"`

	// ReceivedAt is when the ingress accepted the event.
	ReceivedAt time.Time `json:"received_at"`
}

// NewEvent creates an event with a fresh ID and the current timestamp.
func NewEvent(eventType, userID string, payload []byte) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}
}
