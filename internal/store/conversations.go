// ABOUTME: ConversationStore loads and saves the full conversation collection
// ABOUTME: Reads fail soft to an empty collection; write failures are logged, never returned

package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"
)

// saveTimeout bounds a single Save so a stuck backend cannot stall the caller.
const saveTimeout = 5 * time.Second

// ConversationStore persists the conversation collection as one JSON array
// under a fixed key of a Backend.
type ConversationStore struct {
	backend Backend
	key     string
	logger  *slog.Logger
}

// NewConversationStore wraps backend. An empty key means DefaultKey.
func NewConversationStore(backend Backend, key string, logger *slog.Logger) *ConversationStore {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{
		backend: backend,
		key:     key,
		logger:  logger.With("component", "conversation_store"),
	}
}

// Load returns the persisted collection in stored order. Absent, unreadable
// or corrupt data yields an empty collection. Nil entries and repeated IDs
// are dropped so identities stay unique.
func (s *ConversationStore) Load(ctx context.Context) []*Conversation {
	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		s.logger.Debug("no saved conversations", "key", s.key)
		return []*Conversation{}
	}
	if err != nil {
		s.logger.Warn("failed to read conversations, starting empty", "error", err, "key", s.key)
		return []*Conversation{}
	}

	var decoded []*Conversation
	if err := json.Unmarshal(data, &decoded); err != nil {
		s.logger.Warn("failed to decode conversations, starting empty", "error", err, "key", s.key)
		return []*Conversation{}
	}

	seen := make(map[string]bool, len(decoded))
	out := make([]*Conversation, 0, len(decoded))
	for _, c := range decoded {
		if c == nil || c.ID == "" || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		out = append(out, c)
	}

	s.logger.Debug("loaded conversations", "count", len(out))
	return out
}

// Save serializes the whole collection and writes it in one Put. Errors are
// logged and swallowed: in-memory state stays authoritative and the next
// successful Save reconciles. Reports whether the write succeeded.
func (s *ConversationStore) Save(ctx context.Context, conversations []*Conversation) bool {
	if conversations == nil {
		conversations = []*Conversation{}
	}
	data, err := json.Marshal(conversations)
	if err != nil {
		s.logger.Error("failed to encode conversations", "error", err)
		return false
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err := s.backend.Put(saveCtx, s.key, data); err != nil {
		s.logger.Error("failed to save conversations",
			"error", err,
			"key", s.key,
			"count", len(conversations))
		return false
	}

	s.logger.Debug("conversations saved", "count", len(conversations), "bytes", len(data))
	return true
}

// Upsert replaces the conversation with the same ID, or appends it.
func Upsert(conversations []*Conversation, c *Conversation) []*Conversation {
	for i := range conversations {
		if conversations[i].ID == c.ID {
			conversations[i] = c
			return conversations
		}
	}
	return append(conversations, c)
}
