// ABOUTME: Core domain types shared by the synchronization engine packages.
// ABOUTME: Defines conversation summaries, messages, senders, and the dedup key.

package history

import (
	"time"
	"unicode/utf8"
)

// Sender identifies which side of the conversation produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Summary is the cached view of a conversation. The remote store is
// authoritative; a Summary only reflects what the client last learned.
type Summary struct {
	ID            string
	SessionID     string
	Title         string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is a single turn within a conversation. Messages are append-only:
// once created they are never mutated.
type Message struct {
	ID             string
	ConversationID string
	Sender         Sender
	Content        string
	Timestamp      time.Time
	IsMarkdown     bool
}

// DedupKey identifies a logical message for deduplication purposes. Using a
// comparable struct instead of a concatenated string means delimiter
// characters inside content cannot collide with other keys.
type DedupKey struct {
	ConversationID string
	Content        string
	Sender         Sender
}

// maxTitleRunes is how much of the first user message becomes the
// conversation title.
const maxTitleRunes = 20

// TruncateTitle derives a conversation title from message content, keeping at
// most 20 runes and appending an ellipsis when content was cut. Counting runes
// rather than bytes keeps CJK titles intact.
func TruncateTitle(content string) string {
	if utf8.RuneCountInString(content) <= maxTitleRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxTitleRunes]) + "..."
}
