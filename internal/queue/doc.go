// Package queue persists the ingredient match queue in SQLite or MySQL and
// exposes the operations that drive a row's lifecycle.
//
// The Store owns connections, embedded per-dialect migrations, and every state
// change: inserts with dedup, the atomic claim, the fallback MarkProcessing
// stamp, the resolution writes, and the expired-lease sweep. All coordination
// between worker processes happens inside single write transactions here;
// callers hold no locks of their own.
//
// Timestamps are stored as fixed-width UTC text so lease comparisons are plain
// string comparisons on both dialects. A NULL needs_ingredient_review column
// reads as true, matching rows written before the flag existed.
package queue
