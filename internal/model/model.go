// ABOUTME: Model boundary: providers create sessions, sessions stream responses
// ABOUTME: Responses are tagged snapshot or delta so the reconciler can fold either shape

package model

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned when StreamResponse is called on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Availability is the raw readiness report of a provider.
type Availability int

const (
	AvailabilityReady      Availability = iota
	AvailabilityNotReady                // backend exists but is still preparing (downloading, warming up, no agent attached)
	AvailabilityIneligible              // backend can never serve this client
	AvailabilityDisabled                // backend is switched off or access is not granted
	AvailabilityUnknown
)

// String returns the availability name used in logs.
func (a Availability) String() string {
	switch a {
	case AvailabilityReady:
		return "ready"
	case AvailabilityNotReady:
		return "not_ready"
	case AvailabilityIneligible:
		return "ineligible"
	case AvailabilityDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// ResponseEvent indicates the type of response event.
type ResponseEvent int

const (
	EventSnapshot ResponseEvent = iota // Text is the full accumulated reply so far
	EventDelta                         // Text is appended to the reply
	EventDone                          // stream finished; Text, when non-empty, is the final full reply
	EventError                         // stream failed; Error describes why
)

// String returns the event name used in logs.
func (e ResponseEvent) String() string {
	switch e {
	case EventSnapshot:
		return "snapshot"
	case EventDelta:
		return "delta"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Response represents one event of a streamed reply.
type Response struct {
	Event ResponseEvent
	Text  string
	Error string
}

// Done reports whether r ends the stream.
func (r *Response) Done() bool {
	return r.Event == EventDone || r.Event == EventError
}

// Session is a stateful inference context bound to one conversation.
type Session interface {
	// ID identifies the session in logs and on the wire.
	ID() string

	// ConversationID is the conversation the session was created for.
	ConversationID() string

	// StreamResponse issues prompt as the sole input and returns a channel of
	// responses. The channel ends with a Done or Error response and is then
	// closed. Cancelling ctx stops the stream and closes the channel.
	StreamResponse(ctx context.Context, prompt string) (<-chan *Response, error)

	// Close releases the session. Further StreamResponse calls fail with ErrSessionClosed.
	Close() error
}

// Provider reports readiness and creates sessions.
type Provider interface {
	// Availability reports whether the provider can serve requests. A non-nil
	// error means the check itself failed.
	Availability(ctx context.Context) (Availability, error)

	// NewSession creates a fresh session for conversationID. No prior history
	// is replayed into it.
	NewSession(ctx context.Context, conversationID string) (Session, error)
}
