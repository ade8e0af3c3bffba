// ABOUTME: Wire types for the remote conversation endpoints.
// ABOUTME: Field names follow the server's snake_case JSON contract.

package conversation

import (
	"time"

	"github.com/medassist/chatsync/internal/history"
)

// createRequest is the body of POST /api/conversations/.
type createRequest struct {
	ConversationID string         `json:"conversation_id"`
	SessionID      string         `json:"session_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// createResponse is the body returned by POST /api/conversations/.
type createResponse struct {
	ConversationID string `json:"conversation_id"`
}

// chatSummary is one entry of the GET /chat/history/ listing.
type chatSummary struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	CreatedAt     string `json:"created_at"`
	LastMessageAt string `json:"last_message_at"`
}

// listResponse is the body of GET /chat/history/.
type listResponse struct {
	Chats []chatSummary `json:"chats"`
}

// chatDetail is the conversation metadata in GET /chat/history/{id}/.
type chatDetail struct {
	Title string `json:"title"`
}

// chatMessage is one message in GET /chat/history/{id}/.
type chatMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Sender  string `json:"sender"`
}

// loadResponse is the body of GET /chat/history/{id}/.
type loadResponse struct {
	Chat     chatDetail    `json:"chat"`
	Messages []chatMessage `json:"messages"`
}

// deleteResponse is the body of DELETE /chat/history/{id}/.
type deleteResponse struct {
	DeletedConversations int `json:"deleted_conversations"`
	DeletedMessages      int `json:"deleted_messages"`
	DeletedFeedback      int `json:"deleted_feedback"`
}

// toSummary converts a wire chat entry to a cached summary.
func (c chatSummary) toSummary() history.Summary {
	return history.Summary{
		ID:            c.ID,
		Title:         c.Title,
		CreatedAt:     parseTime(c.CreatedAt),
		LastMessageAt: parseTime(c.LastMessageAt),
	}
}

// parseTime parses the server's ISO timestamps, returning the zero time for
// absent or unparseable values.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
