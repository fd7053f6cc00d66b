// Package worker runs the claim, match and write loop against the match queue.
//
// A Pool starts Concurrency loops. Each loop claims a batch under its own
// resolver id, asks the Matcher about every row, and records the outcome
// through the resolution writer: resolved, resolved-pending-unit, or failed.
// Transient matcher errors leave the row untouched so the lease reclaimer
// returns it to the pending pool.
package worker
