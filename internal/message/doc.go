// Package message persists individual conversation turns to the remote
// store, idempotently.
//
// Deduplication is keyed by (conversation, content, sender) rather than by
// sequence, so completion order does not matter and overlapping callers that
// submit the same logical message (a display trigger and a history trigger
// firing for the same event) collapse to a single persisted message. A failed
// remote write degrades to a locally generated id: the content survives, the
// failure is logged, and the dedup index still suppresses later duplicates.
package message
