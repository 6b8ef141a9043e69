// ABOUTME: Controller owns the conversation collection, the current selection and the error state
// ABOUTME: All mutations run under one mutex and are persisted before the lock is released

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/coven-chat/internal/availability"
	"github.com/2389/coven-chat/internal/dedupe"
	"github.com/2389/coven-chat/internal/model"
	"github.com/2389/coven-chat/internal/session"
	"github.com/2389/coven-chat/internal/store"
)

var (
	// ErrSendInProgress is returned when the conversation already has a reply streaming.
	ErrSendInProgress = errors.New("a reply is already being generated for this conversation")

	// ErrUnavailable is returned when the pre-send availability check fails.
	ErrUnavailable = errors.New("model unavailable")

	// ErrDuplicateSend is returned when an idempotency key was already used.
	ErrDuplicateSend = errors.New("duplicate send")

	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("controller closed")

	// ErrEmptyTitle is returned when renaming to a blank title.
	ErrEmptyTitle = errors.New("title must not be empty")
)

// DefaultDedupeTTL is how long an idempotency key is remembered.
const DefaultDedupeTTL = 10 * time.Minute

const dedupeMaxKeys = 1024

// Options configures a Controller.
type Options struct {
	Provider    model.Provider
	Store       *store.ConversationStore
	Broadcaster *Broadcaster // created when nil
	Logger      *slog.Logger
	DedupeTTL   time.Duration
	Now         func() time.Time
}

// State is a deep copy of everything a renderer shows.
type State struct {
	Conversations []*store.Conversation
	CurrentID     string
	Generating    bool
	ErrorMessage  string
	Availability  availability.State
}

// Current returns the current conversation in the snapshot, or nil.
func (s State) Current() *store.Conversation {
	for _, c := range s.Conversations {
		if c.ID == s.CurrentID {
			return c
		}
	}
	return nil
}

// Controller drives conversations: selection, persistence and sending.
type Controller struct {
	store       *store.ConversationStore
	sessions    *session.Manager
	monitor     *availability.Monitor
	broadcaster *Broadcaster
	sends       *dedupe.Cache
	logger      *slog.Logger
	now         func() time.Time

	mu            sync.Mutex
	conversations []*store.Conversation
	currentID     string
	errorMessage  string
	active        map[string]*stream // conversationID -> stream in Awaiting/Streaming
	lastAvail     availability.State
	started       bool
	closed        bool
	wg            sync.WaitGroup
}

// New creates a Controller. Call Start to load persisted conversations.
func New(opts Options) (*Controller, error) {
	if opts.Provider == nil {
		return nil, errors.New("model provider is required")
	}
	if opts.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Broadcaster == nil {
		opts.Broadcaster = NewBroadcaster(opts.Logger)
	}
	if opts.DedupeTTL <= 0 {
		opts.DedupeTTL = DefaultDedupeTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	monitor := availability.NewMonitor(opts.Provider, opts.Logger)
	return &Controller{
		store:         opts.Store,
		sessions:      session.NewManager(opts.Provider, opts.Logger),
		monitor:       monitor,
		broadcaster:   opts.Broadcaster,
		sends:         dedupe.New(opts.DedupeTTL, dedupeMaxKeys),
		logger:        opts.Logger.With("component", "controller"),
		now:           opts.Now,
		conversations: []*store.Conversation{},
		active:        make(map[string]*stream),
		lastAvail:     monitor.State(),
	}, nil
}

// Start loads persisted conversations, makes the front one current, checks
// availability and creates an initial conversation when none exist. Calling
// Start again is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.conversations = c.store.Load(ctx)
	if len(c.conversations) > 0 {
		c.currentID = c.conversations[0].ID
	}
	count := len(c.conversations)
	c.publishLocked(StateEvent{Kind: KindConversationsChanged})
	c.publishLocked(StateEvent{Kind: KindCurrentChanged, ConversationID: c.currentID})
	c.mu.Unlock()

	c.logger.Info("conversations loaded", "count", count)

	c.RecheckAvailability(ctx)

	if count == 0 {
		if _, err := c.CreateConversation(ctx); err != nil {
			return fmt.Errorf("creating initial conversation: %w", err)
		}
	}
	return nil
}

// Subscribe returns state events for conversationID, or for everything when
// conversationID is AllConversations.
func (c *Controller) Subscribe(ctx context.Context, conversationID string) (<-chan StateEvent, string) {
	return c.broadcaster.Subscribe(ctx, conversationID)
}

// Snapshot returns a deep copy of the observable state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Conversations: store.CloneAll(c.conversations),
		CurrentID:     c.currentID,
		Generating:    len(c.active) > 0,
		ErrorMessage:  c.errorMessage,
		Availability:  c.monitor.State(),
	}
}

// Current returns a copy of the current conversation, or nil.
func (c *Controller) Current() *store.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.findLocked(c.currentID).Clone()
}

// Conversation returns a copy of the conversation with id.
func (c *Controller) Conversation(id string) (*store.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv := c.findLocked(id)
	if conv == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	return conv.Clone(), nil
}

// Search returns copies of the conversations whose title or any message
// contains query, ignoring case. An empty query returns all of them.
func (c *Controller) Search(query string) []*store.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(query))
	out := []*store.Conversation{}
	for _, conv := range c.conversations {
		if q == "" || matches(conv, q) {
			out = append(out, conv.Clone())
		}
	}
	return out
}

func matches(conv *store.Conversation, lowerQuery string) bool {
	if strings.Contains(strings.ToLower(conv.Title), lowerQuery) {
		return true
	}
	for _, m := range conv.Messages {
		if strings.Contains(strings.ToLower(m.Content), lowerQuery) {
			return true
		}
	}
	return false
}

// CreateConversation inserts a new conversation at the front and makes it
// current. A reply streaming in the previous conversation is interrupted.
func (c *Controller) CreateConversation(ctx context.Context) (*store.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	conv := c.createLocked(ctx)
	return conv.Clone(), nil
}

func (c *Controller) createLocked(ctx context.Context) *store.Conversation {
	c.interruptLocked(ctx, errSwitched, true)

	conv := store.NewConversation(c.now())
	c.conversations = append([]*store.Conversation{conv}, c.conversations...)
	c.currentID = conv.ID
	c.sessions.Invalidate()
	c.persistLocked(ctx)

	c.logger.Info("conversation created", "conversation_id", conv.ID)
	c.publishLocked(StateEvent{Kind: KindConversationsChanged, ConversationID: conv.ID})
	c.publishLocked(StateEvent{Kind: KindCurrentChanged, ConversationID: conv.ID})
	return conv
}

// SelectConversation makes id current and drops the model session. A reply
// streaming in the previous conversation is interrupted. Selecting the
// current conversation changes nothing.
func (c *Controller) SelectConversation(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.findLocked(id) == nil {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	if id == c.currentID {
		return nil
	}

	c.interruptLocked(ctx, errSwitched, true)
	c.currentID = id
	c.sessions.Invalidate()

	c.logger.Debug("conversation selected", "conversation_id", id)
	c.publishLocked(StateEvent{Kind: KindCurrentChanged, ConversationID: id})
	return nil
}

// DeleteConversation removes id. When it was current, the new front
// conversation becomes current, or none when the collection is empty.
func (c *Controller) DeleteConversation(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	idx := c.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}

	if s, ok := c.active[id]; ok {
		c.abortLocked(ctx, s, errDeleted, false)
	}
	c.conversations = append(c.conversations[:idx], c.conversations[idx+1:]...)

	wasCurrent := c.currentID == id
	if wasCurrent {
		c.currentID = ""
		if len(c.conversations) > 0 {
			c.currentID = c.conversations[0].ID
		}
		c.sessions.Invalidate()
	}
	c.persistLocked(ctx)

	c.logger.Info("conversation deleted", "conversation_id", id)
	c.publishLocked(StateEvent{Kind: KindConversationsChanged, ConversationID: id})
	if wasCurrent {
		c.publishLocked(StateEvent{Kind: KindCurrentChanged, ConversationID: c.currentID})
	}
	return nil
}

// RenameConversation sets a custom title that later messages never replace.
func (c *Controller) RenameConversation(ctx context.Context, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	conv := c.findLocked(id)
	if conv == nil {
		return fmt.Errorf("conversation %s: %w", id, store.ErrNotFound)
	}
	conv.Title = title
	conv.CustomTitle = true
	c.persistLocked(ctx)

	c.publishLocked(StateEvent{Kind: KindConversationsChanged, ConversationID: id})
	return nil
}

// DismissError clears the error message.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setErrorLocked("")
}

// RecheckAvailability runs the availability check and publishes a change.
func (c *Controller) RecheckAvailability(ctx context.Context) availability.State {
	state := c.monitor.Check(ctx)
	c.noteAvailability(state)
	return state
}

// WatchAvailability re-checks availability every interval until ctx is done.
func (c *Controller) WatchAvailability(ctx context.Context, interval time.Duration) {
	c.monitor.Watch(ctx, interval, c.noteAvailability)
}

func (c *Controller) noteAvailability(state availability.State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if state == c.lastAvail {
		return
	}
	c.lastAvail = state
	c.publishLocked(StateEvent{Kind: KindAvailabilityChanged, Availability: state})
}

// Close interrupts streaming replies, waits for them to unwind and releases
// the session, the dedupe cache and every subscription.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.interruptLocked(context.Background(), errClosing, false)
	c.mu.Unlock()

	c.wg.Wait()

	err := c.sessions.Close()
	c.sends.Close()
	c.broadcaster.Close()
	return err
}

func (c *Controller) findLocked(id string) *store.Conversation {
	if idx := c.indexLocked(id); idx >= 0 {
		return c.conversations[idx]
	}
	return nil
}

func (c *Controller) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i, conv := range c.conversations {
		if conv.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) setErrorLocked(msg string) {
	if c.errorMessage == msg {
		return
	}
	c.errorMessage = msg
	c.publishLocked(StateEvent{Kind: KindErrorChanged, ErrorMessage: msg})
}

func (c *Controller) publishLocked(e StateEvent) {
	e.At = c.now()
	c.broadcaster.Publish(e)
}

// persistLocked saves the collection without the in-flight replies of active
// streams. Failures are logged by the store and otherwise ignored.
func (c *Controller) persistLocked(ctx context.Context) {
	convs := c.conversations
	if len(c.active) > 0 {
		convs = make([]*store.Conversation, len(c.conversations))
		for i, conv := range c.conversations {
			s, ok := c.active[conv.ID]
			if !ok {
				convs[i] = conv
				continue
			}
			cp := conv.Clone()
			cp.RemoveMessage(s.messageID)
			convs[i] = cp
		}
	}
	c.store.Save(ctx, convs)
}
