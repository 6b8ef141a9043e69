// ABOUTME: Owns the single model session handle and binds it to one conversation
// ABOUTME: Switching conversation or a failed stream discards the handle; a new one is created lazily

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/coven-chat/internal/model"
)

// Manager holds at most one live session at a time.
type Manager struct {
	provider model.Provider
	mu       sync.Mutex
	current  model.Session
	logger   *slog.Logger
}

// NewManager creates a Manager that builds sessions from provider.
func NewManager(provider model.Provider, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		provider: provider,
		logger:   logger.With("component", "session_manager"),
	}
}

// EnsureSession returns the current session when it is bound to
// conversationID. Otherwise the current session is closed and a new one is
// created. Creation errors are returned as-is; nothing is retried. A done
// ctx returns its error and leaves the current session untouched.
func (m *Manager) EnsureSession(ctx context.Context, conversationID string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m.current != nil && m.current.ConversationID() == conversationID {
		return m.current, nil
	}
	m.dropLocked("rebind")

	sess, err := m.provider.NewSession(ctx, conversationID)
	if err != nil {
		m.logger.Error("failed to create session", "conversation_id", conversationID, "error", err)
		return nil, fmt.Errorf("creating session: %w", err)
	}

	m.current = sess
	m.logger.Info("session created", "session_id", sess.ID(), "conversation_id", conversationID)
	return sess, nil
}

// Current returns the live session, or nil.
func (m *Manager) Current() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Invalidate closes and drops the current session.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked("invalidated")
}

// Release drops sess if it is still the current session. Used after sess
// failed; a session that was already replaced is left alone.
func (m *Manager) Release(sess model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess == nil || m.current != sess {
		return
	}
	m.dropLocked("released after error")
}

// Close drops the current session.
func (m *Manager) Close() error {
	m.Invalidate()
	return nil
}

// dropLocked closes the current session. Must be called with mu held.
func (m *Manager) dropLocked(reason string) {
	if m.current == nil {
		return
	}
	if err := m.current.Close(); err != nil {
		m.logger.Warn("error closing session", "session_id", m.current.ID(), "error", err)
	}
	m.logger.Debug("session dropped",
		"session_id", m.current.ID(),
		"conversation_id", m.current.ConversationID(),
		"reason", reason)
	m.current = nil
}
