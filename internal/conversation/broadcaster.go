// ABOUTME: In-memory fan-out of controller state events to renderers
// ABOUTME: Subscribers follow one conversation or every conversation; slow subscribers drop events

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllConversations subscribes to events of every conversation, including
	// events that belong to none.
	AllConversations = ""
)

// Broadcaster provides in-memory pub/sub for StateEvents. A subscriber
// registers for a conversation ID, or AllConversations, and receives events as
// the controller applies them.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan StateEvent // conversationID -> subID -> ch
	done        chan struct{}
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan StateEvent),
		done:        make(chan struct{}),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for events of conversationID. Returns the event channel
// and a subscription ID for Unsubscribe. The subscription ends when ctx is
// cancelled or the broadcaster is closed; the channel is then closed.
func (b *Broadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan StateEvent, string) {
	subID := uuid.New().String()
	ch := make(chan StateEvent, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan StateEvent)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(conversationID, subID)
		case <-b.done:
		}
	}()

	return ch, subID
}

// Publish delivers event to subscribers of its conversation and to
// AllConversations subscribers. Non-blocking: events are dropped for
// subscribers whose channels are full.
func (b *Broadcaster) Publish(event StateEvent) {
	b.mu.RLock()
	var targets []chan StateEvent
	for _, ch := range b.subscribers[AllConversations] {
		targets = append(targets, ch)
	}
	if event.ConversationID != AllConversations {
		for _, ch := range b.subscribers[event.ConversationID] {
			targets = append(targets, ch)
		}
	}

	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send
	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"conversation_id", event.ConversationID,
				"kind", string(event.Kind))
		}
	}
	b.mu.RUnlock()
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}

	b.logger.Debug("broadcaster closed")
}
