package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/model/fake"
)

func TestEnsureSession_ReusesBoundSession(t *testing.T) {
	p := fake.New()
	m := NewManager(p, nil)
	ctx := context.Background()

	a, err := m.EnsureSession(ctx, "conv-1")
	require.NoError(t, err)
	b, err := m.EnsureSession(ctx, "conv-1")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Len(t, p.Sessions(), 1)
}

func TestEnsureSession_RebindsOnConversationChange(t *testing.T) {
	p := fake.New()
	m := NewManager(p, nil)
	ctx := context.Background()

	a, err := m.EnsureSession(ctx, "conv-1")
	require.NoError(t, err)
	b, err := m.EnsureSession(ctx, "conv-2")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, "conv-2", b.ConversationID())

	sessions := p.Sessions()
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].Closed())
	assert.False(t, sessions[1].Closed())
}

func TestEnsureSession_CreationErrorLeavesNoSession(t *testing.T) {
	p := fake.New()
	m := NewManager(p, nil)
	ctx := context.Background()

	_, err := m.EnsureSession(ctx, "conv-1")
	require.NoError(t, err)

	boom := errors.New("model assets missing")
	p.SetSessionError(boom)

	_, err = m.EnsureSession(ctx, "conv-2")
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, m.Current())
	assert.True(t, p.Sessions()[0].Closed())
}

func TestInvalidate(t *testing.T) {
	p := fake.New()
	m := NewManager(p, nil)
	ctx := context.Background()

	a, err := m.EnsureSession(ctx, "conv-1")
	require.NoError(t, err)
	m.Invalidate()
	assert.Nil(t, m.Current())

	b, err := m.EnsureSession(ctx, "conv-1")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	// Invalidating with nothing bound is fine
	m.Invalidate()
	m.Invalidate()
}

func TestRelease_OnlyDropsMatchingSession(t *testing.T) {
	p := fake.New()
	m := NewManager(p, nil)
	ctx := context.Background()

	old, err := m.EnsureSession(ctx, "conv-1")
	require.NoError(t, err)
	current, err := m.EnsureSession(ctx, "conv-2")
	require.NoError(t, err)

	m.Release(old)
	assert.Same(t, current, m.Current())

	m.Release(current)
	assert.Nil(t, m.Current())

	m.Release(nil)
}

func TestClose(t *testing.T) {
	p := fake.New()
	m := NewManager(p, nil)

	_, err := m.EnsureSession(context.Background(), "conv-1")
	require.NoError(t, err)
	require.NoError(t, m.Close())
	assert.True(t, p.Sessions()[0].Closed())
}

func TestEnsureSession_DoneContextKeepsCurrent(t *testing.T) {
	p := fake.New()
	m := NewManager(p, nil)

	a, err := m.EnsureSession(context.Background(), "conv-2")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.EnsureSession(ctx, "conv-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Same(t, a, m.Current())
	assert.False(t, p.Sessions()[0].Closed())
	assert.Len(t, p.Sessions(), 1)

	// Invalidated handles stay invalidated
	m.Invalidate()
	_, err = m.EnsureSession(ctx, "conv-1")
	assert.Error(t, err)
	assert.Nil(t, m.Current())
}
