package echo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/model"
)

func collect(t *testing.T, ch <-chan *model.Response) []*model.Response {
	t.Helper()
	var out []*model.Response
	timeout := time.After(5 * time.Second)
	for {
		select {
		case resp, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, resp)
		case <-timeout:
			t.Fatal("timed out waiting for stream")
		}
	}
}

func TestProvider_AlwaysReady(t *testing.T) {
	p := New(Options{})
	a, err := p.Availability(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.AvailabilityReady, a)
}

func TestSession_StreamsCumulativeSnapshots(t *testing.T) {
	p := New(Options{Delay: time.Millisecond, Reply: func(string) string { return "Hello there friend" }})
	sess, err := p.NewSession(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", sess.ConversationID())
	assert.NotEmpty(t, sess.ID())

	ch, err := sess.StreamResponse(context.Background(), "hi")
	require.NoError(t, err)

	got := collect(t, ch)
	require.Len(t, got, 4)
	assert.Equal(t, "Hello", got[0].Text)
	assert.Equal(t, "Hello there", got[1].Text)
	assert.Equal(t, "Hello there friend", got[2].Text)
	for _, r := range got[:3] {
		assert.Equal(t, model.EventSnapshot, r.Event)
	}
	assert.Equal(t, model.EventDone, got[3].Event)
	assert.True(t, got[3].Done())
}

func TestSession_DefaultReplyEchoesPrompt(t *testing.T) {
	p := New(Options{})
	sess, err := p.NewSession(context.Background(), "c")
	require.NoError(t, err)

	ch, err := sess.StreamResponse(context.Background(), "  ping  ")
	require.NoError(t, err)
	got := collect(t, ch)
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, "You said: ping", got[len(got)-2].Text)
}

func TestSession_CancelClosesChannel(t *testing.T) {
	p := New(Options{Delay: time.Hour, Reply: func(string) string { return "one two three" }})
	sess, err := p.NewSession(context.Background(), "c")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := sess.StreamResponse(ctx, "x")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "one", first.Text)
	cancel()

	got := collect(t, ch)
	assert.Empty(t, got)
}

func TestSession_ClosedRejectsStream(t *testing.T) {
	p := New(Options{})
	sess, err := p.NewSession(context.Background(), "c")
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	_, err = sess.StreamResponse(context.Background(), "x")
	assert.ErrorIs(t, err, model.ErrSessionClosed)
}
