// Package conversation owns conversation identity and lifecycle: lazy
// idempotent creation, listing, loading, and optimistic deletion.
//
// # Lifecycle
//
// Each conversation moves through these states:
//
//	Uncommitted → Pending → Committed | Degraded
//
// plus terminal Deleted. Degraded means the remote create failed and the
// client-generated id was adopted anyway: the engine prioritizes preserving
// the user's input over strict consistency, so creation failures are logged
// rather than surfaced.
//
// # Optimistic delete
//
// Delete removes the conversation from the local view immediately and, when
// the deleted conversation was current, starts a replacement before the
// network call resolves. If the network delete later fails, the manager
// re-lists to reconcile instead of re-inserting the removed entry
// speculatively.
package conversation
