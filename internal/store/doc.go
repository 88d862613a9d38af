// Package store provides a SQLite journal of BRP sessions and exchanges.
//
// The journal is append-only:
//   - sessions: one row per label, recording the format it was first seen with
//   - exchanges: one row per answered request, keyed by the dispatcher's seq
//
// Writes are idempotent. Replaying an exchange with a seq that is already
// stored is a no-op, so a journal can be fed twice without duplicates.
//
// Reads are ordered by seq ASC. Seq is a logical clock issued by the
// dispatcher and never a timestamp.
//
// # Database Configuration
//
//   - WAL mode: readers run while the dispatcher writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package store
