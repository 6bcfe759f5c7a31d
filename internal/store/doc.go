// Package store provides SQLite-backed durable storage for listflow.
//
// The store holds:
//   - Pending records: opaque tokens with key/value payloads and an expiration
//   - Workflow states: the saved next step and attribute blob of paused workflows
//   - Identities: users and addresses, including verification timestamps
//   - Mailing lists, members (regular members, owners, moderators) and bans
//
// # Critical Patterns
//
// Destructive reads are atomic:
//   - Restoring a workflow state is a single DELETE ... RETURNING statement
//   - Confirming a pending record with expunge reads and deletes inside one
//     transaction and treats "zero rows deleted" as "someone else won"
//   - Two concurrent consumers of the same token therefore see exactly one
//     success and one absence
//
// Unique violations surface as ErrConflict so that callers can run
// optimistic retry loops (token minting) without inspecting driver errors.
//
// Absence of a pending record or workflow state is not an error: those reads
// return a nil result. Lookups of users, addresses, lists and members return
// ErrNotFound.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity (pending values cascade)
package store
