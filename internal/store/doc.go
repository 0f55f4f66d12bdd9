// Package store keeps the relay's thread registry and run ledger in SQLite.
//
// # What is stored
//
// The relay never stores chat content. It records:
//
//   - Thread: an agent-service thread created or deleted through the relay,
//     with the agent it was opened for and an optional deletion time.
//   - Run: one agent run, its final status, the service's error code when
//     it failed, and token usage.
//
// # Implementations
//
//   - SQLiteStore: modernc.org/sqlite, schema created on open
//   - MockStore: in-memory, for tests
//   - NopStore: discards writes; used when no database path is configured
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// The special path ":memory:" opens a private in-memory database.
package store
