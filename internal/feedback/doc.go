// Package feedback records per-message like/dislike reactions. Structurally
// a simpler sibling of the message synchronizer: no dedup key and no ordering
// concerns, just last-write-wins per message id with optimistic local state.
package feedback
