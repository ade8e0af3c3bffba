// Package archive is an optional offline tier that mirrors persisted
// conversations and messages into a local SQLite database. The engine is
// fully functional without it, and never treats archived data as more
// authoritative than the remote store.
package archive
