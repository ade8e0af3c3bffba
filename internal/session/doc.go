// Package session resolves a stable identifier for the current session,
// used to attribute anonymous activity before any conversation exists.
package session
