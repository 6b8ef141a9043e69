package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-chat/internal/store"
)

func TestRenderHTML(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	conv := store.NewConversation(now)
	conv.Title = "Release notes"
	conv.Messages = append(conv.Messages,
		store.NewMessage("Summarize <script>alert(1)</script>", true, now),
		store.NewMessage("Here is a **bold** summary:\n\n- one\n- two", false, now),
	)

	page, err := renderHTML(conv)
	require.NoError(t, err)
	html := string(page)

	assert.Contains(t, html, "<title>Release notes</title>")
	assert.Contains(t, html, `<div class="message user">`)
	assert.Contains(t, html, `<div class="message assistant">`)
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, "<li>one</li>")
	assert.Contains(t, html, "2026-03-01 09:30")
	assert.NotContains(t, html, "<script>")
}

func TestRenderHTML_EscapesTitle(t *testing.T) {
	conv := store.NewConversation(time.Now())
	conv.Title = "<b>sneaky</b>"

	page, err := renderHTML(conv)
	require.NoError(t, err)
	assert.Contains(t, string(page), "&lt;b&gt;sneaky&lt;/b&gt;")
}
