// ABOUTME: Interactive chat loop over a conversation controller
// ABOUTME: Streams replies as they arrive and exposes conversation management as slash commands

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/2389/coven-chat/internal/conversation"
	"github.com/2389/coven-chat/internal/store"
)

type repl struct {
	ctrl    *conversation.Controller
	scanner *bufio.Scanner
	out     io.Writer
	events  <-chan conversation.StateEvent
}

// newREPL subscribes to every controller event for the lifetime of ctx.
func newREPL(ctx context.Context, ctrl *conversation.Controller, in io.Reader, out io.Writer) *repl {
	events, _ := ctrl.Subscribe(ctx, conversation.AllConversations)
	return &repl{
		ctrl:    ctrl,
		scanner: bufio.NewScanner(in),
		out:     out,
		events:  events,
	}
}

// run reads lines until EOF, /quit or ctx is done.
func (r *repl) run(ctx context.Context) error {
	for {
		r.prompt()

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if r.scanner.Scan() {
				inputCh <- r.scanner.Text()
			} else {
				if err := r.scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		if quit := r.handle(ctx, input); quit {
			return nil
		}
	}
}

func (r *repl) prompt() {
	title := "no conversation"
	if conv := r.ctrl.Current(); conv != nil {
		title = conv.Title
	}
	color.New(color.FgHiBlack).Fprintf(r.out, "[%s]", truncate(title, 24))
	fmt.Fprint(r.out, "> ")
}

// handle runs one line of input. Returns true when the user asked to quit.
func (r *repl) handle(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}

	if !strings.HasPrefix(input, "/") {
		r.send(ctx, input)
		fmt.Fprintln(r.out)
		return false
	}

	cmd, args, _ := strings.Cut(input, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help":
		r.printHelp()
	case "/new":
		conv, err := r.ctrl.CreateConversation(ctx)
		if err != nil {
			r.printError(err)
			break
		}
		fmt.Fprintf(r.out, "Started conversation %s\n", shortID(conv.ID))
	case "/list":
		snap := r.ctrl.Snapshot()
		writeConversationTable(r.out, snap.Conversations, snap.CurrentID)
	case "/use":
		id, err := resolveID(r.ctrl.Snapshot().Conversations, args)
		if err != nil {
			r.printError(err)
			break
		}
		if err := r.ctrl.SelectConversation(ctx, id); err != nil {
			r.printError(err)
			break
		}
		r.printHistory()
	case "/delete":
		id := ""
		if args == "" {
			if conv := r.ctrl.Current(); conv != nil {
				id = conv.ID
			}
		}
		if id == "" {
			var err error
			if id, err = resolveID(r.ctrl.Snapshot().Conversations, args); err != nil {
				r.printError(err)
				break
			}
		}
		if err := r.ctrl.DeleteConversation(ctx, id); err != nil {
			r.printError(err)
			break
		}
		fmt.Fprintf(r.out, "Deleted conversation %s\n", shortID(id))
	case "/rename":
		conv := r.ctrl.Current()
		if conv == nil {
			r.printError(errors.New("no current conversation"))
			break
		}
		if err := r.ctrl.RenameConversation(ctx, conv.ID, args); err != nil {
			r.printError(err)
			break
		}
		fmt.Fprintf(r.out, "Renamed to %q\n", args)
	case "/search":
		writeConversationTable(r.out, r.ctrl.Search(args), r.ctrl.Snapshot().CurrentID)
	case "/history":
		r.printHistory()
	case "/retry":
		text := lastUserMessage(r.ctrl.Current())
		if text == "" {
			r.printError(errors.New("nothing to retry"))
			break
		}
		r.send(ctx, text)
	case "/dismiss":
		r.ctrl.DismissError()
	case "/status":
		state := r.ctrl.RecheckAvailability(ctx)
		if state.Available {
			color.New(color.FgGreen).Fprintln(r.out, state.Title)
		} else {
			color.New(color.FgYellow).Fprintf(r.out, "%s: %s\n", state.Title, state.Message)
		}
	default:
		fmt.Fprintf(r.out, "Unknown command %s. /help for commands.\n", cmd)
	}

	fmt.Fprintln(r.out)
	return false
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /new              Start a new conversation")
	fmt.Fprintln(r.out, "  /list             List conversations")
	fmt.Fprintln(r.out, "  /use <id>         Switch to a conversation (id prefix is enough)")
	fmt.Fprintln(r.out, "  /delete [id]      Delete a conversation (default: current)")
	fmt.Fprintln(r.out, "  /rename <title>   Rename the current conversation")
	fmt.Fprintln(r.out, "  /search <text>    Find conversations by title or content")
	fmt.Fprintln(r.out, "  /history          Show the current conversation")
	fmt.Fprintln(r.out, "  /retry            Send the last message again")
	fmt.Fprintln(r.out, "  /dismiss          Clear the error message")
	fmt.Fprintln(r.out, "  /status           Check model availability")
	fmt.Fprintln(r.out, "  /help             Show this help")
	fmt.Fprintln(r.out, "  /quit             Exit")
}

func (r *repl) printError(err error) {
	color.New(color.FgRed).Fprintf(r.out, "[error] %v\n", err)
}

func (r *repl) printHistory() {
	conv := r.ctrl.Current()
	if conv == nil {
		fmt.Fprintln(r.out, "No conversation selected.")
		return
	}
	color.New(color.FgCyan, color.Bold).Fprintln(r.out, conv.Title)
	for _, m := range conv.Messages {
		r.printAuthor(m.IsFromUser)
		fmt.Fprintln(r.out, m.Content)
	}
}

func (r *repl) printAuthor(fromUser bool) {
	if fromUser {
		color.New(color.FgGreen).Fprint(r.out, "you: ")
	} else {
		color.New(color.FgMagenta).Fprint(r.out, "assistant: ")
	}
}

// send submits text and prints the reply as it streams.
func (r *repl) send(ctx context.Context, text string) {
	turn, err := r.ctrl.Submit(ctx, conversation.SendRequest{Text: text})
	switch {
	case errors.Is(err, conversation.ErrUnavailable):
		state := r.ctrl.Snapshot().Availability
		color.New(color.FgYellow).Fprintf(r.out, "[%s] %s\n", state.Title, state.Message)
		return
	case err != nil:
		r.printError(err)
		return
	case turn == nil:
		return
	}

	r.printAuthor(false)
	printed := ""
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return
		case ev, ok := <-r.events:
			if !ok {
				fmt.Fprintln(r.out)
				return
			}
			if ev.Kind == conversation.KindMessageUpdated && ev.MessageID == turn.ReplyMessageID {
				printed = r.printDelta(printed, ev.Content)
			}
		case <-turn.Done():
			// Events may have been dropped; the saved message is authoritative
			if conv, err := r.ctrl.Conversation(turn.ConversationID); err == nil {
				if idx := conv.MessageIndex(turn.ReplyMessageID); idx >= 0 {
					printed = r.printDelta(printed, conv.Messages[idx].Content)
				}
			}
			fmt.Fprintln(r.out)
			if turn.Err() != nil {
				if msg := r.ctrl.Snapshot().ErrorMessage; msg != "" {
					color.New(color.FgRed).Fprintln(r.out, msg)
				}
			}
			return
		}
	}
}

// printDelta prints what content adds to printed and returns content.
// A reply that rewrites earlier text is printed again in full.
func (r *repl) printDelta(printed, content string) string {
	if strings.HasPrefix(content, printed) {
		fmt.Fprint(r.out, content[len(printed):])
	} else {
		fmt.Fprint(r.out, "\n"+content)
	}
	return content
}

func lastUserMessage(conv *store.Conversation) string {
	if conv == nil {
		return ""
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		if conv.Messages[i].IsFromUser {
			return conv.Messages[i].Content
		}
	}
	return ""
}

// writeConversationTable prints conversations, marking currentID.
func writeConversationTable(out io.Writer, conversations []*store.Conversation, currentID string) {
	if len(conversations) == 0 {
		fmt.Fprintln(out, "No conversations.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tMESSAGES\tUPDATED")
	for _, c := range conversations {
		marker := " "
		if c.ID == currentID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %s\t%s\t%d\t%s\n",
			marker,
			shortID(c.ID),
			truncate(c.Title, 40),
			len(c.Messages),
			c.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
