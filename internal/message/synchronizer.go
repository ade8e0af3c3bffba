// ABOUTME: MessageSynchronizer persists individual messages idempotently.
// ABOUTME: Dedup-checked single-attempt saves with local-id fallback on failure.

package message

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medassist/chatsync/internal/history"
	"github.com/medassist/chatsync/internal/transport"
)

// Transport defines what the synchronizer needs from the HTTP layer.
type Transport interface {
	PostJSON(ctx context.Context, path string, body, out any) error
}

// SessionSource resolves the session id attached to persist requests.
type SessionSource interface {
	Resolve() string
}

// ConversationUpdater receives conversation metadata changes caused by saved
// messages. The conversation manager implements this.
type ConversationUpdater interface {
	NoteUserMessage(conversationID, content string, at time.Time)
}

// PersistedObserver is notified after a message has been recorded, whether
// the remote write succeeded or the engine degraded to a local id. The render
// collaborator implements this. Resolved once at construction; a nil observer
// means the engine operates without one.
type PersistedObserver interface {
	OnMessagePersisted(messageID, conversationID string)
}

// Archiver mirrors persisted messages into the optional offline tier.
type Archiver interface {
	SaveMessage(ctx context.Context, msg *history.Message) error
}

// persistRequest is the body of POST /api/messages/.
type persistRequest struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Sender         string `json:"sender"`
	Timestamp      string `json:"timestamp"`
	SessionID      string `json:"session_id"`
}

// persistResponse is the body returned by POST /api/messages/.
type persistResponse struct {
	MessageID string `json:"message_id"`
}

// Synchronizer persists messages idempotently. Each logical message, keyed by
// (conversation, content, sender), is written at most once per session: a
// dedup hit returns the previously recorded id without a network call, and a
// failed write records the locally generated id so the content is never lost
// and a later duplicate call is still suppressed.
type Synchronizer struct {
	transport Transport
	cache     *history.Cache
	sessions  SessionSource
	updater   ConversationUpdater
	observer  PersistedObserver
	archive   Archiver
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[history.DedupKey]string // single-flight guard per logical message
}

// NewSynchronizer creates a Synchronizer. updater, observer, sessions, and
// archive are optional.
func NewSynchronizer(transport Transport, cache *history.Cache, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		transport: transport,
		cache:     cache,
		logger:    logger.With("component", "message"),
		inflight:  make(map[history.DedupKey]string),
	}
}

// SetSessionSource configures where persist requests get their session id.
func (s *Synchronizer) SetSessionSource(src SessionSource) { s.sessions = src }

// SetUpdater configures the conversation metadata callback.
func (s *Synchronizer) SetUpdater(u ConversationUpdater) { s.updater = u }

// SetObserver configures the persisted-message observer.
func (s *Synchronizer) SetObserver(o PersistedObserver) { s.observer = o }

// SetArchiver configures the optional offline archive tier.
func (s *Synchronizer) SetArchiver(a Archiver) { s.archive = a }

// Save persists one message. id may be empty, in which case one is generated.
// Returns the message id now associated with the content, which is the
// server-confirmed id on success, the previously recorded id on a dedup hit,
// or the locally generated id when the remote write failed.
//
// Save performs no retries of its own beyond what the transport does:
// retry-then-duplicate is exactly the failure mode the dedup key prevents.
// The only error it returns is a ValidationError for empty content.
func (s *Synchronizer) Save(ctx context.Context, conversationID, content string, sender history.Sender, id string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", &transport.ValidationError{Field: "content", Reason: "must not be empty"}
	}
	if conversationID == "" {
		return "", &transport.ValidationError{Field: "conversation_id", Reason: "must not be empty"}
	}

	key := history.DedupKey{ConversationID: conversationID, Content: content, Sender: sender}

	// Already persisted (or locally adopted) this session: no network call.
	if existing, ok := s.cache.LookupMessage(key); ok {
		s.logger.Debug("duplicate message suppressed",
			"conversation_id", conversationID,
			"message_id", existing)
		return existing, nil
	}

	if id == "" {
		id = uuid.New().String()
	}

	// Cooperative single-flight: a second save of the same logical message
	// while the first is outstanding (e.g. a double-click) gets the first
	// attempt's id instead of issuing a second request.
	s.mu.Lock()
	if inflightID, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		s.logger.Debug("save already in flight, reusing id",
			"conversation_id", conversationID,
			"message_id", inflightID)
		return inflightID, nil
	}
	s.inflight[key] = id
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inflight, key)
		s.mu.Unlock()
	}()

	now := time.Now()
	req := persistRequest{
		MessageID:      id,
		ConversationID: conversationID,
		Content:        content,
		Sender:         string(sender),
		Timestamp:      now.Format(time.RFC3339),
		SessionID:      s.resolveSessionID(conversationID),
	}

	var resp persistResponse
	err := s.transport.PostJSON(ctx, "/api/messages/", req, &resp)
	if err != nil {
		// Record the local id anyway: the content must not be lost, and a
		// later identical save must not re-attempt the write.
		s.cache.RecordMessage(key, id)
		s.logger.Warn("message persist failed, keeping local id",
			"conversation_id", conversationID,
			"message_id", id,
			"error", err)
	} else {
		if resp.MessageID != "" {
			id = resp.MessageID
		}
		s.cache.RecordMessage(key, id)
		s.logger.Debug("message persisted",
			"conversation_id", conversationID,
			"message_id", id)
	}

	s.finish(ctx, &history.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Timestamp:      now,
	})

	return id, nil
}

// finish applies post-save side effects: conversation metadata for user
// messages, archive mirroring, and observer notification.
func (s *Synchronizer) finish(ctx context.Context, msg *history.Message) {
	if msg.Sender == history.SenderUser && s.updater != nil {
		s.updater.NoteUserMessage(msg.ConversationID, msg.Content, msg.Timestamp)
	}

	if s.archive != nil {
		if err := s.archive.SaveMessage(ctx, msg); err != nil {
			s.logger.Warn("failed to archive message",
				"conversation_id", msg.ConversationID,
				"message_id", msg.ID,
				"error", err)
		}
	}

	if s.observer != nil {
		s.observer.OnMessagePersisted(msg.ID, msg.ConversationID)
	}
}

// resolveSessionID returns the session id for a persist request, defaulting
// to the conversation id.
func (s *Synchronizer) resolveSessionID(conversationID string) string {
	if s.sessions != nil {
		if id := s.sessions.Resolve(); id != "" {
			return id
		}
	}
	return conversationID
}
