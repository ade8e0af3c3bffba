// ABOUTME: SQLite-backed offline archive of conversations and messages using modernc.org/sqlite.
// ABOUTME: A local mirror only; the remote store stays authoritative and is never read back.

package archive

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/medassist/chatsync/internal/history"
)

// Store mirrors persisted conversations and messages into a local SQLite
// database so activity survives the process even when the remote write was
// degraded. Writes are best-effort; nothing in the engine reads the archive
// back into its cache.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the archive database at path. The schema is created
// automatically; parent directories are created if needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "archive")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening archive database: %w", err)
	}

	// WAL keeps writers from blocking the occasional reader
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating archive schema: %w", err)
	}

	logger.Info("archive opened", "path", path)
	return s, nil
}

// createSchema creates the archive tables if they don't exist.
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			last_message_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_id
			ON messages(conversation_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// SaveConversation upserts a conversation summary.
func (s *Store) SaveConversation(ctx context.Context, summary *history.Summary) error {
	query := `
		INSERT INTO conversations (id, session_id, title, created_at, last_message_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			last_message_at = excluded.last_message_at
	`
	var lastMessageAt any
	if !summary.LastMessageAt.IsZero() {
		lastMessageAt = summary.LastMessageAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, query,
		summary.ID, summary.SessionID, summary.Title, summary.CreatedAt.UTC(), lastMessageAt)
	if err != nil {
		return fmt.Errorf("archiving conversation %s: %w", summary.ID, err)
	}
	return nil
}

// SaveMessage records a message. Messages are append-only, so an id that was
// already archived is left untouched.
func (s *Store) SaveMessage(ctx context.Context, msg *history.Message) error {
	query := `
		INSERT INTO messages (id, conversation_id, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		msg.ID, msg.ConversationID, string(msg.Sender), msg.Content, timestamp.UTC())
	if err != nil {
		return fmt.Errorf("archiving message %s: %w", msg.ID, err)
	}
	return nil
}

// DeleteConversation removes a conversation and its messages from the
// archive, mirroring a remote delete's cascade.
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
		return fmt.Errorf("pruning archived messages for %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id); err != nil {
		return fmt.Errorf("pruning archived conversation %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing archive delete: %w", err)
	}
	return nil
}

// CountMessages returns how many messages are archived for a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting archived messages: %w", err)
	}
	return count, nil
}

// HasConversation reports whether a conversation is present in the archive.
func (s *Store) HasConversation(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM conversations WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking archived conversation: %w", err)
	}
	return true, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
