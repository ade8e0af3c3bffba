// Package render is the display collaborator for the synchronization engine:
// markdown detection and HTML conversion for message content.
package render
