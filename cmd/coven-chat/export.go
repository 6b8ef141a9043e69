// ABOUTME: Renders a saved conversation as a standalone HTML page
// ABOUTME: Message content is treated as markdown and converted with goldmark

package main

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/coven-chat/internal/store"
)

var exportTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; line-height: 1.5; }
.message { border-radius: 0.5rem; padding: 0.5rem 1rem; margin: 1rem 0; }
.user { background: #e8f0fe; }
.assistant { background: #f4f4f5; }
.meta { color: #71717a; font-size: 0.8rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="message {{.Class}}">
<div class="meta">{{.Author}} · {{.Time}}</div>
{{.Body}}</div>
{{end}}</body>
</html>
`))

type exportMessage struct {
	Class  string
	Author string
	Time   string
	Body   template.HTML
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// renderHTML renders conv as an HTML document. Raw HTML inside messages is
// omitted by the markdown renderer.
func renderHTML(conv *store.Conversation) ([]byte, error) {
	data := struct {
		Title    string
		Messages []exportMessage
	}{Title: conv.Title}

	for _, m := range conv.Messages {
		var body bytes.Buffer
		if err := markdown.Convert([]byte(m.Content), &body); err != nil {
			return nil, fmt.Errorf("converting message %s: %w", m.ID, err)
		}
		msg := exportMessage{
			Class:  "assistant",
			Author: "Assistant",
			Time:   m.Timestamp.Format("2006-01-02 15:04"),
			Body:   template.HTML(body.String()),
		}
		if m.IsFromUser {
			msg.Class = "user"
			msg.Author = "You"
		}
		data.Messages = append(data.Messages, msg)
	}

	var out bytes.Buffer
	if err := exportTemplate.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("rendering export: %w", err)
	}
	return out.Bytes(), nil
}
