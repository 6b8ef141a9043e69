// Package conversation is the chat core: it owns the conversation
// collection, drives sends against a model provider and reconciles streamed
// replies into the conversation log.
//
// # Controller
//
// The Controller holds all observable state behind one mutex:
//
//	ctrl, err := conversation.New(conversation.Options{Provider: p, Store: cs})
//	err = ctrl.Start(ctx)
//
// Operations:
//
//   - CreateConversation, SelectConversation, DeleteConversation, RenameConversation
//   - Send (blocking) and Submit (returns a Turn once the reply is streaming)
//   - RecheckAvailability, WatchAvailability
//   - DismissError, Search, Snapshot, Subscribe
//
// Every mutation is persisted through store.ConversationStore before the
// lock is released. Persistence failures are logged and never surfaced.
//
// # Streaming
//
// A send appends the user message and an empty assistant placeholder, then
// streams the reply into the placeholder:
//
//	Idle -> Drafting -> Awaiting -> Streaming -> Completed
//	                        \            \
//	                         `-----------`--> Failed
//
// Snapshot responses replace the placeholder content, delta responses append
// to it. On failure the placeholder is removed and the error message is set
// to "Failed to generate response: ...". The placeholder is never persisted
// while it is still streaming.
//
// Each stream is registered per conversation. Switching or deleting the
// conversation cancels the stream and unregisters it, so responses that
// arrive afterwards are dropped.
//
// # Events
//
// Subscribe returns StateEvents for one conversation or, with
// AllConversations, for everything. Slow subscribers miss events rather
// than block the controller; Snapshot is always authoritative.
package conversation
