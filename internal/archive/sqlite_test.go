// ABOUTME: Tests for the SQLite archive: schema creation, upserts,
// ABOUTME: append-only messages, and cascade deletion.

package archive

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medassist/chatsync/internal/history"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive", "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveConversation_Upsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveConversation(ctx, &history.Summary{
		ID:        "c1",
		SessionID: "anon-1",
		Title:     "first title",
		CreatedAt: now,
	}))

	// Updating the same id replaces title and last activity, not the row
	require.NoError(t, store.SaveConversation(ctx, &history.Summary{
		ID:            "c1",
		Title:         "updated title",
		CreatedAt:     now,
		LastMessageAt: now.Add(time.Minute),
	}))

	ok, err := store.HasConversation(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	var title string
	require.NoError(t, store.db.QueryRow("SELECT title FROM conversations WHERE id = ?", "c1").Scan(&title))
	assert.Equal(t, "updated title", title)
}

func TestStore_SaveMessage_AppendOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := &history.Message{
		ID:             "m1",
		ConversationID: "c1",
		Sender:         history.SenderUser,
		Content:        "original content",
		Timestamp:      time.Now(),
	}
	require.NoError(t, store.SaveMessage(ctx, msg))

	// A second save with the same id is ignored, never mutated
	mutated := *msg
	mutated.Content = "rewritten"
	require.NoError(t, store.SaveMessage(ctx, &mutated))

	var content string
	require.NoError(t, store.db.QueryRow("SELECT content FROM messages WHERE id = ?", "m1").Scan(&content))
	assert.Equal(t, "original content", content)

	count, err := store.CountMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_DeleteConversation_Cascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveConversation(ctx, &history.Summary{ID: "c1", CreatedAt: time.Now()}))
	require.NoError(t, store.SaveConversation(ctx, &history.Summary{ID: "c2", CreatedAt: time.Now()}))
	for _, id := range []string{"m1", "m2"} {
		require.NoError(t, store.SaveMessage(ctx, &history.Message{
			ID: id, ConversationID: "c1", Sender: history.SenderUser, Content: "x",
		}))
	}
	require.NoError(t, store.SaveMessage(ctx, &history.Message{
		ID: "m3", ConversationID: "c2", Sender: history.SenderUser, Content: "x",
	}))

	require.NoError(t, store.DeleteConversation(ctx, "c1"))

	ok, err := store.HasConversation(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	count, err := store.CountMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Other conversations are untouched
	count, err = store.CountMessages(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStore_HasConversation_Unknown(t *testing.T) {
	store := newTestStore(t)

	ok, err := store.HasConversation(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen_CreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deeply", "nested", "chat.db")
	store, err := Open(path)
	require.NoError(t, err)
	store.Close()
}
