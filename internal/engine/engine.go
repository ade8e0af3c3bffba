// ABOUTME: Engine wires the transport, cache, manager, synchronizer, and
// ABOUTME: recorder into a single client-facing synchronization facade.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medassist/chatsync/internal/archive"
	"github.com/medassist/chatsync/internal/config"
	"github.com/medassist/chatsync/internal/conversation"
	"github.com/medassist/chatsync/internal/feedback"
	"github.com/medassist/chatsync/internal/history"
	"github.com/medassist/chatsync/internal/message"
	"github.com/medassist/chatsync/internal/render"
	"github.com/medassist/chatsync/internal/session"
	"github.com/medassist/chatsync/internal/transport"
)

// Cache defaults applied when the config leaves them unset.
const (
	defaultDedupTTL     = 24 * time.Hour
	defaultDedupMaxSize = 10000
)

// Engine owns every collaborator of the synchronization pipeline and exposes
// the operations a chat frontend needs. All components share one history
// cache and one transport client.
type Engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *transport.Client
	cache    *history.Cache
	manager  *conversation.Manager
	messages *message.Synchronizer
	feedback *feedback.Recorder
	renderer *render.Renderer
	archive  *archive.Store
}

// New builds a fully wired Engine from cfg. The archive tier is opened only
// when cfg.Archive.Path is set; everything else is always present.
func New(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	retry := transport.RetryPolicy{
		MaxAttempts: cfg.Transport.RetryAttempts,
		Delay:       cfg.Transport.RetryDelay,
	}
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = transport.DefaultMaxAttempts
	}
	if retry.Delay == 0 {
		retry.Delay = transport.DefaultRetryDelay
	}
	timeout := cfg.Transport.Timeout
	if timeout == 0 {
		timeout = transport.DefaultRequestTimeout
	}

	client, err := transport.New(cfg.Server.BaseURL, cfg.Server.CSRFToken,
		transport.WithRetryPolicy(retry),
		transport.WithTimeout(timeout),
		transport.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating transport client: %w", err)
	}

	ttl := cfg.Cache.DedupTTL
	if ttl == 0 {
		ttl = defaultDedupTTL
	}
	maxSize := cfg.Cache.DedupMaxSize
	if maxSize == 0 {
		maxSize = defaultDedupMaxSize
	}
	cache := history.NewCache(ttl, maxSize)

	e := &Engine{
		cfg:      cfg,
		logger:   logger.With("component", "engine"),
		client:   client,
		cache:    cache,
		manager:  conversation.NewManager(client, cache, logger),
		messages: message.NewSynchronizer(client, cache, logger),
		feedback: feedback.NewRecorder(client, logger),
		renderer: render.NewRenderer(logger),
	}

	var storage session.Storage
	if cfg.Session.StoragePath != "" {
		storage = session.NewFileStorage(cfg.Session.StoragePath)
	}
	resolver := session.NewResolver(e.manager.CurrentConversationID, storage, logger)

	e.manager.SetSessionSource(resolver)
	e.messages.SetSessionSource(resolver)
	e.messages.SetUpdater(e.manager)
	e.messages.SetObserver(e.renderer)
	e.feedback.SetSessionSource(resolver)
	e.feedback.SetConversationSource(e.manager)

	if cfg.Archive.Path != "" {
		store, err := archive.Open(cfg.Archive.Path)
		if err != nil {
			cache.Close()
			return nil, fmt.Errorf("opening archive: %w", err)
		}
		e.archive = store
		e.manager.SetArchiver(store)
		e.messages.SetArchiver(store)
	}

	return e, nil
}

// EnsureConversation returns the current conversation id, creating one on
// the server the first time it is needed.
func (e *Engine) EnsureConversation(ctx context.Context) string {
	return e.manager.EnsureConversation(ctx)
}

// NewConversation abandons the current conversation pointer and starts a
// fresh one. Registration with the server happens in the background.
func (e *Engine) NewConversation(ctx context.Context) string {
	return e.manager.CreateNew(ctx)
}

// SaveUserMessage persists a user-authored message into the current
// conversation, creating the conversation first if necessary.
func (e *Engine) SaveUserMessage(ctx context.Context, content string) (string, error) {
	id := e.manager.EnsureConversation(ctx)
	return e.messages.Save(ctx, id, content, history.SenderUser, "")
}

// SaveAssistantMessage persists an assistant-authored message into the
// current conversation.
func (e *Engine) SaveAssistantMessage(ctx context.Context, content string) (string, error) {
	id := e.manager.EnsureConversation(ctx)
	return e.messages.Save(ctx, id, content, history.SenderAssistant, "")
}

// ListConversations returns the merged remote and local conversation list,
// newest first.
func (e *Engine) ListConversations(ctx context.Context) []history.Summary {
	return e.manager.List(ctx)
}

// LoadConversation fetches the full transcript of a conversation and makes
// it current.
func (e *Engine) LoadConversation(ctx context.Context, id string) (*conversation.Detail, error) {
	return e.manager.Load(ctx, id)
}

// DeleteConversation removes a conversation locally and on the server.
func (e *Engine) DeleteConversation(ctx context.Context, id string) (*conversation.DeleteResult, error) {
	return e.manager.Delete(ctx, id)
}

// SubmitFeedback records a rating for a persisted message.
func (e *Engine) SubmitFeedback(ctx context.Context, messageID string, t feedback.Type, details string) (*feedback.Feedback, error) {
	return e.feedback.Submit(ctx, messageID, t, details)
}

// RenderMessage converts message content to HTML, using markdown rendering
// when the content looks like markdown.
func (e *Engine) RenderMessage(content string) (string, error) {
	return e.renderer.Render(content)
}

// Health checks connectivity to the remote store.
func (e *Engine) Health(ctx context.Context) error {
	return e.client.Health(ctx)
}

// CurrentConversationID returns the active conversation id, or empty when
// none has been established yet.
func (e *Engine) CurrentConversationID() string {
	return e.manager.CurrentConversationID()
}

// ConversationState reports the sync state of a conversation id.
func (e *Engine) ConversationState(id string) conversation.State {
	return e.manager.State(id)
}

// Close flushes pending feedback submissions and releases the cache and
// archive resources.
func (e *Engine) Close() error {
	e.feedback.Wait()
	e.cache.Close()
	if e.archive != nil {
		if err := e.archive.Close(); err != nil {
			return fmt.Errorf("closing archive: %w", err)
		}
	}
	return nil
}
