// ABOUTME: Observable state change notifications published by the Controller
// ABOUTME: Each event names what changed and carries enough data for a renderer to update

package conversation

import (
	"time"

	"github.com/2389/coven-chat/internal/availability"
)

// EventKind names the part of the observable state that changed.
type EventKind string

const (
	KindConversationsChanged EventKind = "conversations_changed"
	KindCurrentChanged       EventKind = "current_changed"
	KindMessageUpdated       EventKind = "message_updated"
	KindGeneratingChanged    EventKind = "generating_changed"
	KindErrorChanged         EventKind = "error_changed"
	KindAvailabilityChanged  EventKind = "availability_changed"
)

// StateEvent describes one change. Only the fields relevant to Kind are set.
type StateEvent struct {
	Kind           EventKind
	ConversationID string
	MessageID      string
	Content        string // message_updated: full content of the message
	Generating     bool
	ErrorMessage   string
	Availability   availability.State
	At             time.Time
}
