// ABOUTME: ConversationManager owns conversation identity and lifecycle.
// ABOUTME: Lazy idempotent creation, listing, optimistic delete, local degradation.

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medassist/chatsync/internal/history"
)

// State tracks where a conversation sits in its lifecycle.
type State string

const (
	// StateUncommitted: no create request has been issued yet.
	StateUncommitted State = "uncommitted"
	// StatePending: a create request is in flight.
	StatePending State = "pending"
	// StateCommitted: the remote store confirmed the conversation.
	StateCommitted State = "committed"
	// StateDegraded: the create failed; the client-generated id was adopted
	// anyway so the caller can keep working.
	StateDegraded State = "degraded"
	// StateDeleted: the conversation was explicitly deleted.
	StateDeleted State = "deleted"
)

// Transport defines what the manager needs from the HTTP layer.
type Transport interface {
	PostJSON(ctx context.Context, path string, body, out any) error
	GetJSON(ctx context.Context, path string, out any) error
	DeleteJSON(ctx context.Context, path string, out any) error
}

// SessionSource resolves the session id attached to create requests.
type SessionSource interface {
	Resolve() string
}

// Archiver mirrors conversation summaries into the optional offline tier.
type Archiver interface {
	SaveConversation(ctx context.Context, summary *history.Summary) error
	DeleteConversation(ctx context.Context, id string) error
}

// Detail is a loaded conversation: its title and ordered messages.
type Detail struct {
	ID       string
	Title    string
	Messages []history.Message
}

// DeleteResult reports what the server removed.
type DeleteResult struct {
	Conversations int
	Messages      int
	Feedback      int
}

// Manager owns the "current conversation" pointer and the conversation
// lifecycle. Creation is lazy and idempotent; failures degrade to client-
// generated ids rather than surfacing to the caller, because losing the
// user's typed message is worse than a temporarily unsynced id.
type Manager struct {
	mu        sync.Mutex
	current   string
	states    map[string]State
	transport Transport
	cache     *history.Cache
	sessions  SessionSource
	archive   Archiver
	logger    *slog.Logger
}

// NewManager creates a Manager on top of the given transport and cache.
func NewManager(transport Transport, cache *history.Cache, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		states:    make(map[string]State),
		transport: transport,
		cache:     cache,
		logger:    logger.With("component", "conversation"),
	}
}

// SetSessionSource configures where create requests get their session id.
// Without one, the candidate conversation id doubles as the session id.
func (m *Manager) SetSessionSource(s SessionSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = s
}

// SetArchiver configures the optional offline archive tier.
func (m *Manager) SetArchiver(a Archiver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archive = a
}

// CurrentConversationID returns the active conversation id, or empty when
// none exists yet. Collaborators use this to tag their own activity.
func (m *Manager) CurrentConversationID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// State returns the lifecycle state of a conversation id.
func (m *Manager) State(id string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[id]; ok {
		return s
	}
	return StateUncommitted
}

// EnsureConversation returns the current conversation id, creating one lazily
// if none exists. Calling it twice without an intervening CreateNew returns
// the same id and issues at most one create request. A failed create adopts
// the candidate id in degraded mode; the failure is logged, never returned.
func (m *Manager) EnsureConversation(ctx context.Context) string {
	m.mu.Lock()
	if m.current != "" {
		id := m.current
		m.mu.Unlock()
		return id
	}
	m.mu.Unlock()

	candidate := uuid.New().String()
	// Resolve the session id before adopting the candidate, so a fresh
	// session attributes the create to its stored or anonymous session id.
	sessionID := m.resolveSessionID(candidate)

	m.mu.Lock()
	if m.current != "" {
		// Another caller won the race
		id := m.current
		m.mu.Unlock()
		return id
	}
	m.current = candidate
	m.states[candidate] = StatePending
	m.mu.Unlock()

	m.create(ctx, candidate, "lazy", sessionID)
	return candidate
}

// CreateNew unconditionally discards the current conversation and starts a
// fresh one. The current pointer switches immediately; the create request is
// fire-and-forget, so UI state can reset without waiting on the network.
// Sends still in flight for the old id are not redirected.
func (m *Manager) CreateNew(ctx context.Context) string {
	m.mu.Lock()
	candidate := uuid.New().String()
	previous := m.current
	m.current = candidate
	m.states[candidate] = StatePending
	m.mu.Unlock()

	if previous != "" {
		m.logger.Info("starting new conversation", "previous", previous, "conversation_id", candidate)
	}

	// Detached context: the create should outlive the caller's request scope.
	go m.create(context.Background(), candidate, "new_chat", m.resolveSessionID(candidate))

	return candidate
}

// create issues the idempotent create request and records the outcome.
func (m *Manager) create(ctx context.Context, id, createdBy, sessionID string) {
	now := time.Now()

	req := createRequest{
		ConversationID: id,
		SessionID:      sessionID,
		Metadata: map[string]any{
			"created_by": createdBy,
			"timestamp":  now.Format(time.RFC3339),
		},
	}

	var resp createResponse
	err := m.transport.PostJSON(ctx, "/api/conversations/", req, &resp)

	summary := &history.Summary{
		ID:        id,
		SessionID: sessionID,
		CreatedAt: now,
	}

	m.mu.Lock()
	if err != nil {
		// Degraded: adopt the candidate id so the caller can proceed offline
		m.states[id] = StateDegraded
	} else {
		m.states[id] = StateCommitted
	}
	archive := m.archive
	m.mu.Unlock()

	m.cache.PutConversation(summary)

	if err != nil {
		m.logger.Warn("conversation create failed, continuing with local id",
			"conversation_id", id,
			"error", err)
		return
	}

	m.logger.Debug("conversation created", "conversation_id", id)

	if archive != nil {
		if aerr := archive.SaveConversation(ctx, summary); aerr != nil {
			m.logger.Warn("failed to archive conversation", "conversation_id", id, "error", aerr)
		}
	}
}

// List fetches all conversations from the remote store, merges them into the
// cache (server entries win), and returns a snapshot sorted descending by
// last activity. Network failure is not an error: the caller gets whatever
// the cache already holds.
func (m *Manager) List(ctx context.Context) []history.Summary {
	var resp listResponse
	if err := m.transport.GetJSON(ctx, "/chat/history/", &resp); err != nil {
		m.logger.Warn("listing conversations failed, serving cached view", "error", err)
		return m.cache.Snapshot()
	}

	summaries := make([]history.Summary, 0, len(resp.Chats))
	for _, chat := range resp.Chats {
		if chat.ID == "" {
			continue
		}
		summaries = append(summaries, chat.toSummary())
	}
	m.cache.MergeConversations(summaries)

	return m.cache.Snapshot()
}

// Load fetches one conversation with its messages, makes it current, and
// seeds the dedup index so re-sending already-loaded content is suppressed.
func (m *Manager) Load(ctx context.Context, id string) (*Detail, error) {
	var resp loadResponse
	if err := m.transport.GetJSON(ctx, fmt.Sprintf("/chat/history/%s/", id), &resp); err != nil {
		return nil, fmt.Errorf("loading conversation %s: %w", id, err)
	}

	m.mu.Lock()
	m.current = id
	m.states[id] = StateCommitted
	m.mu.Unlock()

	if resp.Chat.Title != "" {
		m.cache.TouchConversation(id, resp.Chat.Title, time.Now())
	}

	detail := &Detail{ID: id, Title: resp.Chat.Title}
	for _, msg := range resp.Messages {
		message := history.Message{
			ID:             msg.ID,
			ConversationID: id,
			Sender:         history.Sender(msg.Sender),
			Content:        msg.Content,
		}
		detail.Messages = append(detail.Messages, message)

		// Seed the dedup index: these messages are already persisted
		m.cache.RecordMessage(history.DedupKey{
			ConversationID: id,
			Content:        msg.Content,
			Sender:         message.Sender,
		}, msg.ID)
	}

	m.logger.Debug("conversation loaded", "conversation_id", id, "messages", len(detail.Messages))
	return detail, nil
}

// Delete removes a conversation. The local removal is optimistic: the cache
// entry disappears and, if the conversation was current, a new one starts
// before the network call resolves. A confirmed network failure triggers a
// reconciling re-list; nothing is re-inserted speculatively.
func (m *Manager) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	m.cache.RemoveConversation(id)

	m.mu.Lock()
	m.states[id] = StateDeleted
	wasCurrent := m.current == id
	archive := m.archive
	m.mu.Unlock()

	if wasCurrent {
		m.CreateNew(ctx)
	}

	if archive != nil {
		if aerr := archive.DeleteConversation(ctx, id); aerr != nil {
			m.logger.Warn("failed to prune archived conversation", "conversation_id", id, "error", aerr)
		}
	}

	var resp deleteResponse
	if err := m.transport.DeleteJSON(ctx, fmt.Sprintf("/chat/history/%s/", id), &resp); err != nil {
		m.logger.Warn("conversation delete failed, reconciling", "conversation_id", id, "error", err)
		m.List(ctx)
		return nil, fmt.Errorf("deleting conversation %s: %w", id, err)
	}

	m.logger.Info("conversation deleted",
		"conversation_id", id,
		"deleted_messages", resp.DeletedMessages,
		"deleted_feedback", resp.DeletedFeedback)

	return &DeleteResult{
		Conversations: resp.DeletedConversations,
		Messages:      resp.DeletedMessages,
		Feedback:      resp.DeletedFeedback,
	}, nil
}

// NoteUserMessage records that a user message landed in a conversation: the
// title follows the latest user message (truncated) and the conversation
// moves to the front of the listing. Called by the message synchronizer.
func (m *Manager) NoteUserMessage(conversationID, content string, at time.Time) {
	m.cache.TouchConversation(conversationID, history.TruncateTitle(content), at)

	m.mu.Lock()
	archive := m.archive
	m.mu.Unlock()

	if archive != nil {
		if summary, ok := m.cache.GetConversation(conversationID); ok {
			if err := archive.SaveConversation(context.Background(), summary); err != nil {
				m.logger.Warn("failed to archive conversation update",
					"conversation_id", conversationID, "error", err)
			}
		}
	}
}

// resolveSessionID returns the session id for a create request. Without a
// session source the candidate conversation id doubles as the session id,
// matching the server's own default.
func (m *Manager) resolveSessionID(candidate string) string {
	m.mu.Lock()
	sessions := m.sessions
	m.mu.Unlock()

	if sessions != nil {
		if id := sessions.Resolve(); id != "" {
			return id
		}
	}
	return candidate
}
