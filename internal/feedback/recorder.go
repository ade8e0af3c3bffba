// ABOUTME: FeedbackRecorder tracks one like/dislike per message, last write wins.
// ABOUTME: Optimistic local state with fire-and-forget network submission.

package feedback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medassist/chatsync/internal/transport"
)

// Type classifies a feedback submission.
type Type string

const (
	TypeHelpful          Type = "helpful"
	TypeNeedsImprovement Type = "needs-improvement"
)

// Valid reports whether t is a known feedback type.
func (t Type) Valid() bool {
	return t == TypeHelpful || t == TypeNeedsImprovement
}

// Feedback is one recorded reaction to a message. At most one Feedback is
// active per message id; a later submission supersedes an earlier one.
type Feedback struct {
	ID             string
	MessageID      string
	ConversationID string
	Type           Type
	Details        string
	Timestamp      time.Time
}

// Transport defines what the recorder needs from the HTTP layer.
type Transport interface {
	PostJSON(ctx context.Context, path string, body, out any) error
}

// SessionSource resolves the session id attached to submissions.
type SessionSource interface {
	Resolve() string
}

// ConversationSource resolves the conversation a message belongs to.
type ConversationSource interface {
	CurrentConversationID() string
}

// submitRequest is the body of POST /api/feedback/.
type submitRequest struct {
	FeedbackID     string `json:"feedback_id"`
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Type           string `json:"type"`
	Details        string `json:"details,omitempty"`
	Timestamp      string `json:"timestamp"`
	SessionID      string `json:"session_id"`
}

// Recorder records user feedback on messages. Local state reflects a
// submission immediately; the network write is fire-and-forget with a logged
// failure, and never blocks or rolls back.
type Recorder struct {
	transport     Transport
	sessions      SessionSource
	conversations ConversationSource
	logger        *slog.Logger

	mu        sync.Mutex
	byMessage map[string]*Feedback
	wg        sync.WaitGroup
}

// NewRecorder creates a Recorder. sessions and conversations are optional.
func NewRecorder(transport Transport, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		transport: transport,
		logger:    logger.With("component", "feedback"),
		byMessage: make(map[string]*Feedback),
	}
}

// SetSessionSource configures where submissions get their session id.
func (r *Recorder) SetSessionSource(s SessionSource) { r.sessions = s }

// SetConversationSource configures how submissions resolve their conversation.
func (r *Recorder) SetConversationSource(c ConversationSource) { r.conversations = c }

// Submit records feedback for a message, overwriting any prior feedback for
// the same message id. The returned Feedback is the new local state; the
// network submission happens in the background.
func (r *Recorder) Submit(ctx context.Context, messageID string, t Type, details string) (*Feedback, error) {
	if messageID == "" {
		return nil, &transport.ValidationError{Field: "message_id", Reason: "must not be empty"}
	}
	if !t.Valid() {
		return nil, &transport.ValidationError{Field: "type", Reason: "unknown feedback type"}
	}

	fb := &Feedback{
		ID:        uuid.New().String(),
		MessageID: messageID,
		Type:      t,
		Details:   details,
		Timestamp: time.Now(),
	}
	if r.conversations != nil {
		fb.ConversationID = r.conversations.CurrentConversationID()
	}

	// Optimistic: the new state is visible before the network resolves.
	// Last write wins; nothing accumulates.
	r.mu.Lock()
	r.byMessage[messageID] = fb
	r.mu.Unlock()

	req := submitRequest{
		FeedbackID:     fb.ID,
		MessageID:      fb.MessageID,
		ConversationID: fb.ConversationID,
		Type:           string(fb.Type),
		Details:        fb.Details,
		Timestamp:      fb.Timestamp.Format(time.RFC3339),
		SessionID:      r.resolveSessionID(fb),
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// Detached context: submission outlives the caller's request scope.
		if err := r.transport.PostJSON(context.Background(), "/api/feedback/", req, nil); err != nil {
			r.logger.Warn("feedback submission failed",
				"message_id", fb.MessageID,
				"feedback_id", fb.ID,
				"error", err)
		}
	}()

	return fb, nil
}

// Current returns the active feedback for a message, if any.
func (r *Recorder) Current(messageID string) (*Feedback, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fb, ok := r.byMessage[messageID]
	if !ok {
		return nil, false
	}
	copied := *fb
	return &copied, true
}

// Wait blocks until all in-flight submissions finish. Used by tests and
// graceful shutdown.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// resolveSessionID returns the session id for a submission, defaulting to
// the conversation id.
func (r *Recorder) resolveSessionID(fb *Feedback) string {
	if r.sessions != nil {
		if id := r.sessions.Resolve(); id != "" {
			return id
		}
	}
	return fb.ConversationID
}
