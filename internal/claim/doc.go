// Package claim hands batches of pending match queue rows to workers.
//
// A Coordinator wraps one Strategy chosen once at construction. The atomic
// strategy delegates to the store's single-transaction claim and guarantees
// disjoint batches across processes. The fallback strategy pages pending rows,
// filters them client-side, and stamps the lease in a separate write; two
// callers can receive the same row. Fallback is only selected when the atomic
// probe fails and the caller opted in, and the choice is logged as a warning.
package claim
