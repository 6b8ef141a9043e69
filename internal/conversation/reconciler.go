// ABOUTME: Folds a streamed model reply into one in-flight assistant message
// ABOUTME: Streams are identity-tagged; events for an interrupted stream are discarded

package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/coven-chat/internal/model"
	"github.com/2389/coven-chat/internal/store"
)

// errorPrefix starts every user-visible send failure.
const errorPrefix = "Failed to generate response: "

var (
	errSwitched = errors.New("interrupted by switching conversation")
	errDeleted  = errors.New("conversation deleted")
	errClosing  = errors.New("shutting down")
)

// SendRequest is one user submission.
type SendRequest struct {
	Text string
	// IdempotencyKey, when set, makes a repeated submission of the same
	// intent fail with ErrDuplicateSend instead of sending twice.
	IdempotencyKey string
}

// stream is one reply being generated. The pointer is the stream's identity:
// a conversation's entry in Controller.active is replaced or removed when the
// stream ends or is interrupted, and late events for a stream that is no
// longer registered are dropped.
type stream struct {
	id             string
	conversationID string
	messageID      string
	cancel         context.CancelFunc
	done           chan struct{}
	err            error
}

// Turn tracks one submitted send.
type Turn struct {
	ConversationID string
	UserMessageID  string
	ReplyMessageID string

	c *Controller
	s *stream
}

// Done is closed when the reply has completed, failed or was interrupted.
func (t *Turn) Done() <-chan struct{} { return t.s.done }

// Wait blocks until the turn ends or ctx is done.
func (t *Turn) Wait(ctx context.Context) error {
	select {
	case <-t.s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns why the reply failed, or nil if it completed. Valid after Done.
func (t *Turn) Err() error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	return t.s.err
}

// Send submits text to the current conversation and waits for the reply.
// Whitespace-only text does nothing. Reply failures are reported through the
// error message state, not returned; the returned errors are
// ErrUnavailable, ErrSendInProgress and ErrClosed.
func (c *Controller) Send(ctx context.Context, text string) error {
	turn, err := c.Submit(ctx, SendRequest{Text: text})
	if err != nil || turn == nil {
		return err
	}
	return turn.Wait(ctx)
}

// Submit starts a send and returns once the user message is recorded and the
// reply placeholder appended. The reply streams in the background under a
// context derived from ctx. A nil Turn with a nil error means the text was
// blank.
func (c *Controller) Submit(ctx context.Context, req SendRequest) (*Turn, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, nil
	}

	key := req.IdempotencyKey
	if key != "" && !c.sends.Claim(key) {
		c.logger.Debug("duplicate send suppressed", "idempotency_key", key)
		return nil, ErrDuplicateSend
	}
	release := func() {
		if key != "" {
			c.sends.Release(key)
		}
	}

	if state := c.RecheckAvailability(ctx); !state.Available {
		release()
		c.logger.Info("send aborted, model unavailable", "reason", state.Reason.String())
		return nil, ErrUnavailable
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		release()
		return nil, ErrClosed
	}

	conv := c.findLocked(c.currentID)
	if conv == nil {
		conv = c.createLocked(ctx)
	}
	if _, busy := c.active[conv.ID]; busy {
		release()
		return nil, ErrSendInProgress
	}

	now := c.now()
	userMsg := store.NewMessage(req.Text, true, now)
	conv.Messages = append(conv.Messages, userMsg)
	if len(conv.Messages) == 1 && !conv.CustomTitle {
		conv.Title = DeriveTitle(req.Text)
	}
	conv.UpdatedAt = now

	reply := store.NewMessage("", false, now)
	conv.Messages = append(conv.Messages, reply)

	streamCtx, cancel := context.WithCancel(ctx)
	s := &stream{
		id:             uuid.New().String(),
		conversationID: conv.ID,
		messageID:      reply.ID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	wasGenerating := len(c.active) > 0
	c.active[conv.ID] = s

	// The placeholder is stripped from what gets saved until the reply ends
	c.persistLocked(ctx)

	c.setErrorLocked("")
	c.publishLocked(StateEvent{Kind: KindConversationsChanged, ConversationID: conv.ID})
	c.publishLocked(StateEvent{Kind: KindMessageUpdated, ConversationID: conv.ID, MessageID: userMsg.ID, Content: userMsg.Content})
	c.publishLocked(StateEvent{Kind: KindMessageUpdated, ConversationID: conv.ID, MessageID: reply.ID})
	if !wasGenerating {
		c.publishLocked(StateEvent{Kind: KindGeneratingChanged, Generating: true})
	}

	c.logger.Info("send started",
		"conversation_id", conv.ID,
		"stream_id", s.id,
		"message_id", reply.ID)

	c.wg.Add(1)
	go c.run(streamCtx, s, req.Text)

	return &Turn{
		ConversationID: conv.ID,
		UserMessageID:  userMsg.ID,
		ReplyMessageID: reply.ID,
		c:              c,
		s:              s,
	}, nil
}

// run acquires the session, issues the prompt and applies every response.
func (c *Controller) run(ctx context.Context, s *stream, prompt string) {
	defer c.wg.Done()
	defer close(s.done)
	defer s.cancel()

	// An interrupted stream must not bind a session to the conversation it left
	if !c.registered(s) {
		return
	}

	sess, err := c.sessions.EnsureSession(ctx, s.conversationID)
	if err != nil {
		c.fail(s, err)
		return
	}

	responses, err := sess.StreamResponse(ctx, prompt)
	if err != nil {
		c.sessions.Release(sess)
		c.fail(s, err)
		return
	}

	for resp := range responses {
		switch resp.Event {
		case model.EventSnapshot:
			c.apply(s, resp.Text, false)
		case model.EventDelta:
			c.apply(s, resp.Text, true)
		case model.EventDone:
			if resp.Text != "" {
				c.apply(s, resp.Text, false)
			}
			c.complete(s)
			s.cancel()
			drain(responses)
			return
		case model.EventError:
			c.sessions.Release(sess)
			c.fail(s, errors.New(resp.Error))
			s.cancel()
			drain(responses)
			return
		}
	}

	// Channel closed without a terminal response
	if err := ctx.Err(); err != nil {
		c.fail(s, err)
		return
	}
	c.complete(s)
}

// registered reports whether s is still the stream of its conversation.
// A cancelled but registered stream goes on to fail through EnsureSession.
func (c *Controller) registered(s *stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active[s.conversationID] == s
}

func drain(responses <-chan *model.Response) {
	for range responses {
	}
}

// apply writes one response into the in-flight message. Snapshots replace
// the content; deltas append to it.
func (c *Controller) apply(s *stream, text string, delta bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := c.inFlightLocked(s)
	if msg == nil {
		c.logger.Debug("dropping late response", "stream_id", s.id, "conversation_id", s.conversationID)
		return
	}
	if delta {
		msg.Content += text
	} else {
		msg.Content = text
	}
	conv := c.findLocked(s.conversationID)
	conv.UpdatedAt = c.now()

	c.publishLocked(StateEvent{
		Kind:           KindMessageUpdated,
		ConversationID: s.conversationID,
		MessageID:      s.messageID,
		Content:        msg.Content,
	})
}

// inFlightLocked returns the message s writes to, or nil if s is no longer
// the registered stream for its conversation.
func (c *Controller) inFlightLocked(s *stream) *store.Message {
	if c.active[s.conversationID] != s {
		return nil
	}
	conv := c.findLocked(s.conversationID)
	if conv == nil {
		return nil
	}
	idx := conv.MessageIndex(s.messageID)
	if idx < 0 {
		return nil
	}
	return &conv.Messages[idx]
}

// complete keeps the last applied content and persists.
func (c *Controller) complete(s *stream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active[s.conversationID] != s {
		return
	}
	c.finishLocked(s)
	c.persistLocked(context.Background())

	c.logger.Info("send completed", "conversation_id", s.conversationID, "stream_id", s.id)
	c.publishLocked(StateEvent{Kind: KindConversationsChanged, ConversationID: s.conversationID})
	c.publishGeneratingLocked()
}

// fail removes the in-flight message and surfaces err.
func (c *Controller) fail(s *stream, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active[s.conversationID] != s {
		return
	}
	c.failLocked(context.Background(), s, err, true)
}

// abortLocked cancels s and runs the failure path for it.
func (c *Controller) abortLocked(ctx context.Context, s *stream, reason error, surface bool) {
	s.cancel()
	c.failLocked(ctx, s, reason, surface)
}

// interruptLocked aborts every active stream.
func (c *Controller) interruptLocked(ctx context.Context, reason error, surface bool) {
	for _, s := range c.active {
		c.abortLocked(ctx, s, reason, surface)
	}
}

func (c *Controller) failLocked(ctx context.Context, s *stream, err error, surface bool) {
	s.err = err
	c.finishLocked(s)
	if conv := c.findLocked(s.conversationID); conv != nil {
		conv.RemoveMessage(s.messageID)
	}
	c.persistLocked(ctx)

	c.logger.Warn("send failed",
		"conversation_id", s.conversationID,
		"stream_id", s.id,
		"error", err)

	c.publishLocked(StateEvent{Kind: KindConversationsChanged, ConversationID: s.conversationID})
	if surface {
		c.setErrorLocked(errorPrefix + err.Error())
	}
	c.publishGeneratingLocked()
}

// finishLocked unregisters s. Later events for it are dropped.
func (c *Controller) finishLocked(s *stream) {
	if c.active[s.conversationID] == s {
		delete(c.active, s.conversationID)
	}
}

func (c *Controller) publishGeneratingLocked() {
	if len(c.active) == 0 {
		c.publishLocked(StateEvent{Kind: KindGeneratingChanged, Generating: false})
	}
}
