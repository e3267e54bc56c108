// Package store is the SQLite journal of sleep transactions.
//
// Each transaction that reached Done is one row in transactions plus one row
// per state it entered in transitions. The journal is append-only: writing
// the same transaction twice is a no-op.
//
// # Critical Patterns
//
// Logical ordering:
//   - All ordering uses the seq column stamped by the engine clock, never
//     timestamps
//   - All list queries end in ORDER BY seq ASC, id ASC COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Transitions must belong to a transaction
package store
