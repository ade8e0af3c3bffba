// Package history provides the engine's local view of remote conversation
// state: a conversation summary table and a message deduplication index.
//
// The cache is scoped to the process lifetime. It starts empty on every run
// and is rebuilt from the server by listing conversations; nothing in it is
// ever treated as more authoritative than the remote store.
package history
