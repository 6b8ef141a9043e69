// ABOUTME: Local echo provider that needs no backend
// ABOUTME: Streams the reply word by word as cumulative snapshots with a configurable delay

package echo

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/model"
)

// DefaultDelay is the pause between streamed words.
const DefaultDelay = 40 * time.Millisecond

// Options configures the echo provider.
type Options struct {
	Delay time.Duration
	// Reply builds the reply for a prompt. Defaults to echoing the prompt back.
	Reply  func(prompt string) string
	Logger *slog.Logger
}

// Provider is a model.Provider that is always ready.
type Provider struct {
	delay  time.Duration
	reply  func(string) string
	logger *slog.Logger
}

// New creates an echo provider.
func New(opts Options) *Provider {
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Reply == nil {
		opts.Reply = defaultReply
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Provider{
		delay:  opts.Delay,
		reply:  opts.Reply,
		logger: opts.Logger.With("component", "echo_provider"),
	}
}

func defaultReply(prompt string) string {
	return "You said: " + strings.TrimSpace(prompt)
}

// Availability always reports ready.
func (p *Provider) Availability(ctx context.Context) (model.Availability, error) {
	return model.AvailabilityReady, nil
}

// NewSession creates a session bound to conversationID.
func (p *Provider) NewSession(ctx context.Context, conversationID string) (model.Session, error) {
	s := &session{
		id:             uuid.New().String(),
		conversationID: conversationID,
		provider:       p,
	}
	p.logger.Debug("session created", "session_id", s.id, "conversation_id", conversationID)
	return s, nil
}

type session struct {
	id             string
	conversationID string
	provider       *Provider

	mu     sync.Mutex
	closed bool
}

func (s *session) ID() string             { return s.id }
func (s *session) ConversationID() string { return s.conversationID }

func (s *session) StreamResponse(ctx context.Context, prompt string) (<-chan *model.Response, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, model.ErrSessionClosed
	}

	words := strings.Fields(s.provider.reply(prompt))
	out := make(chan *model.Response)

	go func() {
		defer close(out)

		send := func(resp *model.Response) bool {
			select {
			case out <- resp:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var b strings.Builder
		for i, w := range words {
			if i > 0 {
				b.WriteByte(' ')
				if !sleep(ctx, s.provider.delay) {
					return
				}
			}
			b.WriteString(w)
			if !send(&model.Response{Event: model.EventSnapshot, Text: b.String()}) {
				return
			}
		}
		send(&model.Response{Event: model.EventDone})
	}()

	return out, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// sleep waits for d or until ctx is done. Returns false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
