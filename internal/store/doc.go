// Package store provides persistent storage for conversations.
//
// # Architecture
//
// Persistence is split in two layers:
//
//   - Backend: a key-value store of opaque byte values (SQLiteStore,
//     FileStore, MockStore)
//   - ConversationStore: encodes the whole conversation collection as one
//     JSON array and keeps it under a single fixed key
//
// # Data Models
//
//   - Conversation: ordered chat log with title and timestamps
//   - Message: one chat message with an immutable role flag
//
// # SQLite Configuration
//
// SQLiteStore keeps values in one table:
//
//	CREATE TABLE kv_store (key TEXT PRIMARY KEY, value BLOB, updated_at TEXT)
//
// Two drivers are supported: "sqlite" (modernc.org/sqlite, pure Go, the
// default) and "sqlite3" (github.com/mattn/go-sqlite3, requires cgo).
//
// Database file locations:
//
//   - Default: ~/.local/share/coven/chat.db
//   - Testing: a file under t.TempDir(), or NewMockStore()
//
// # Error Handling
//
// Backends return ErrNotFound for keys that were never written.
// ConversationStore never returns errors: Load degrades to an empty
// collection and Save logs failures.
//
// # Testing
//
// Use NewMockStore() for unit tests; it can inject Get/Put failures:
//
//	backend := store.NewMockStore()
//	backend.SetPutError(errors.New("disk full"))
package store
