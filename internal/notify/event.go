package notify

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event.
type Kind string

const (
	// KindStatus is a lifecycle or engine status line.
	KindStatus Kind = "status"

	// KindMessage is inbound text that was spoken verbatim.
	KindMessage Kind = "message"

	// KindCommand is the text of a structured voice command.
	KindCommand Kind = "command"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindStatus, KindMessage, KindCommand:
		return true
	default:
		return false
	}
}

// Event is one notification.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(kind Kind, text string) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Text:      text,
	}
}
