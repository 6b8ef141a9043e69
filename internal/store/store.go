// ABOUTME: Conversation and Message types plus the key-value Backend interface
// ABOUTME: The whole conversation collection lives under one key as a single JSON value

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

const (
	// DefaultKey is the fixed key the conversation collection is stored under.
	DefaultKey = "saved_conversations"

	// DefaultTitle is the title of a conversation before its first user message.
	DefaultTitle = "New Chat"
)

// Message is a single chat message. IsFromUser and Timestamp never change
// after creation.
type Message struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	IsFromUser bool      `json:"is_from_user"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(content string, isFromUser bool, now time.Time) Message {
	return Message{
		ID:         uuid.New().String(),
		Content:    content,
		IsFromUser: isFromUser,
		Timestamp:  now,
	}
}

// Conversation is an ordered chat log. Messages are kept in insertion order.
type Conversation struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	CustomTitle bool      `json:"custom_title,omitempty"` // set by RenameConversation; derivation never overwrites it
	Messages    []Message `json:"messages"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation titled DefaultTitle.
func NewConversation(now time.Time) *Conversation {
	return &Conversation{
		ID:        uuid.New().String(),
		Title:     DefaultTitle,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = make([]Message, len(c.Messages))
	copy(cp.Messages, c.Messages)
	return &cp
}

// MessageIndex returns the index of the message with the given ID, or -1.
func (c *Conversation) MessageIndex(id string) int {
	for i := range c.Messages {
		if c.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// RemoveMessage drops the message with the given ID. Returns false if it was not present.
func (c *Conversation) RemoveMessage(id string) bool {
	idx := c.MessageIndex(id)
	if idx < 0 {
		return false
	}
	c.Messages = append(c.Messages[:idx], c.Messages[idx+1:]...)
	return true
}

// CloneAll deep-copies a conversation collection.
func CloneAll(conversations []*Conversation) []*Conversation {
	out := make([]*Conversation, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, c.Clone())
	}
	return out
}

// Backend is a key-value store holding opaque serialized values.
type Backend interface {
	// Get returns the value for key, or ErrNotFound if it was never written.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put replaces the value for key in a single write.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the backend
	Close() error
}
