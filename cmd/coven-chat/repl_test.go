package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/config"
	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/model"
	"github.com/2389/coven-chat/internal/model/fake"
	"github.com/2389/coven-chat/internal/store"
)

// newEchoREPL runs a REPL against an in-memory store and an instant echo model.
func newEchoREPL(t *testing.T, input string) (*repl, *bytes.Buffer) {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Backend = config.BackendMemory
	cfg.Model.EchoDelay = 0

	a, err := openApp(cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		a.Close()
	})
	require.NoError(t, a.ctrl.Start(ctx))

	var out bytes.Buffer
	return newREPL(ctx, a.ctrl, strings.NewReader(input), &out), &out
}

func newFakeREPL(t *testing.T, provider *fake.Provider) (*repl, *bytes.Buffer) {
	t.Helper()

	ctrl, err := conversation.New(conversation.Options{
		Provider: provider,
		Store:    store.NewConversationStore(store.NewMockStore(), "", nil),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		ctrl.Close()
	})
	require.NoError(t, ctrl.Start(ctx))

	var out bytes.Buffer
	return newREPL(ctx, ctrl, strings.NewReader(""), &out), &out
}

func TestREPL_SendStreamsReply(t *testing.T) {
	r, out := newEchoREPL(t, "")

	quit := r.handle(context.Background(), "hello world")
	assert.False(t, quit)
	assert.Contains(t, out.String(), "assistant: You said: hello world\n")

	conv := r.ctrl.Current()
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello world", conv.Title)
}

func TestREPL_BlankInputDoesNothing(t *testing.T) {
	r, out := newEchoREPL(t, "")

	assert.False(t, r.handle(context.Background(), "   "))
	assert.Empty(t, out.String())
	assert.Empty(t, r.ctrl.Current().Messages)
}

func TestREPL_NewAndList(t *testing.T) {
	r, out := newEchoREPL(t, "")
	ctx := context.Background()

	r.handle(ctx, "hello world")
	r.handle(ctx, "/new")
	assert.Contains(t, out.String(), "Started conversation")

	out.Reset()
	r.handle(ctx, "/list")

	var current string
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "*") {
			current = line
		}
	}
	assert.Contains(t, current, store.DefaultTitle)
	assert.Contains(t, out.String(), "hello world")
	assert.Len(t, r.ctrl.Snapshot().Conversations, 2)
}

func TestREPL_UseByPrefix(t *testing.T) {
	r, out := newEchoREPL(t, "")
	ctx := context.Background()

	r.handle(ctx, "hello world")
	first := r.ctrl.Current().ID
	r.handle(ctx, "/new")
	require.NotEqual(t, first, r.ctrl.Current().ID)

	out.Reset()
	r.handle(ctx, "/use "+shortID(first))
	assert.Equal(t, first, r.ctrl.Current().ID)
	assert.Contains(t, out.String(), "you: hello world")
	assert.Contains(t, out.String(), "assistant: You said: hello world")

	out.Reset()
	r.handle(ctx, "/use zzzz")
	assert.Contains(t, out.String(), "[error]")
}

func TestREPL_RenameSearchDelete(t *testing.T) {
	r, out := newEchoREPL(t, "")
	ctx := context.Background()

	r.handle(ctx, "hello world")
	r.handle(ctx, "/rename Project X")
	assert.Equal(t, "Project X", r.ctrl.Current().Title)

	r.handle(ctx, "/new")
	out.Reset()
	r.handle(ctx, "/search project")
	assert.Contains(t, out.String(), "Project X")
	assert.NotContains(t, out.String(), store.DefaultTitle)

	r.handle(ctx, "/delete")
	snap := r.ctrl.Snapshot()
	require.Len(t, snap.Conversations, 1)
	assert.Equal(t, "Project X", snap.Current().Title)

	out.Reset()
	r.handle(ctx, "/rename   ")
	assert.Contains(t, out.String(), conversation.ErrEmptyTitle.Error())
}

func TestREPL_Retry(t *testing.T) {
	r, out := newEchoREPL(t, "")
	ctx := context.Background()

	r.handle(ctx, "/retry")
	assert.Contains(t, out.String(), "nothing to retry")

	r.handle(ctx, "ping")
	r.handle(ctx, "/retry")

	conv := r.ctrl.Current()
	require.Len(t, conv.Messages, 4)
	assert.Equal(t, "ping", conv.Messages[2].Content)
	assert.Equal(t, "You said: ping", conv.Messages[3].Content)
}

func TestREPL_UnknownCommandAndQuit(t *testing.T) {
	r, out := newEchoREPL(t, "")
	ctx := context.Background()

	assert.False(t, r.handle(ctx, "/bogus"))
	assert.Contains(t, out.String(), "Unknown command /bogus")

	assert.True(t, r.handle(ctx, "/quit"))
	assert.True(t, r.handle(ctx, "/q"))
}

func TestREPL_Status(t *testing.T) {
	r, out := newEchoREPL(t, "")
	r.handle(context.Background(), "/status")
	assert.Contains(t, out.String(), "Available")
}

func TestREPL_RunUntilQuit(t *testing.T) {
	r, out := newEchoREPL(t, "hi\n/quit\nnever sent\n")

	require.NoError(t, r.run(context.Background()))
	assert.Contains(t, out.String(), "You said: hi")
	assert.NotContains(t, out.String(), "never sent")
}

func TestREPL_RunStopsAtEOF(t *testing.T) {
	r, _ := newEchoREPL(t, "/help\n")
	assert.NoError(t, r.run(context.Background()))
}

func TestREPL_Unavailable(t *testing.T) {
	p := fake.New()
	p.SetAvailability(fake.AvailabilityResult{Availability: model.AvailabilityDisabled})
	r, out := newFakeREPL(t, p)

	r.handle(context.Background(), "hello")
	assert.Contains(t, out.String(), "[AI Disabled]")
	assert.Empty(t, r.ctrl.Current().Messages)
}

func TestREPL_ReplyFailureShowsError(t *testing.T) {
	p := fake.New()
	p.Enqueue(fake.Failing("boom", "partial"))
	r, out := newFakeREPL(t, p)
	ctx := context.Background()

	r.handle(ctx, "hello")
	assert.Contains(t, out.String(), "Failed to generate response: boom")

	r.handle(ctx, "/dismiss")
	assert.Empty(t, r.ctrl.Snapshot().ErrorMessage)
}

func TestLastUserMessage(t *testing.T) {
	assert.Empty(t, lastUserMessage(nil))

	conv := &store.Conversation{Messages: []store.Message{
		{Content: "first", IsFromUser: true},
		{Content: "reply"},
		{Content: "second", IsFromUser: true},
		{Content: "reply"},
	}}
	assert.Equal(t, "second", lastUserMessage(conv))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo w...", truncate("héllo wörld!", 10))
}
