// ABOUTME: Tests for the history cache: dedup index semantics, TTL expiry,
// ABOUTME: eviction, conversation merge/snapshot ordering, and concurrency.

package history

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_LookupMessage_NotRecorded(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	_, ok := cache.LookupMessage(DedupKey{ConversationID: "c1", Content: "hi", Sender: SenderUser})
	assert.False(t, ok)
}

func TestCache_RecordAndLookupMessage(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	key := DedupKey{ConversationID: "c1", Content: "hi", Sender: SenderUser}
	cache.RecordMessage(key, "m1")

	id, ok := cache.LookupMessage(key)
	assert.True(t, ok)
	assert.Equal(t, "m1", id)
}

func TestCache_DedupKey_DistinguishesSender(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	cache.RecordMessage(DedupKey{ConversationID: "c1", Content: "hi", Sender: SenderUser}, "m1")

	// Same content from the assistant is a different logical message
	_, ok := cache.LookupMessage(DedupKey{ConversationID: "c1", Content: "hi", Sender: SenderAssistant})
	assert.False(t, ok)
}

func TestCache_DedupKey_NoDelimiterCollision(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	// With string-concatenation keys these two would collide
	// ("c1-a" + "-" + "b" == "c1" + "-" + "a-b").
	cache.RecordMessage(DedupKey{ConversationID: "c1-a", Content: "b", Sender: SenderUser}, "m1")

	_, ok := cache.LookupMessage(DedupKey{ConversationID: "c1", Content: "a-b", Sender: SenderUser})
	assert.False(t, ok)
}

func TestCache_LookupOrRecordMessage_New(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	key := DedupKey{ConversationID: "c1", Content: "hi", Sender: SenderUser}
	id, existing := cache.LookupOrRecordMessage(key, "m1")
	assert.False(t, existing)
	assert.Equal(t, "m1", id)

	// Second call returns the first id
	id, existing = cache.LookupOrRecordMessage(key, "m2")
	assert.True(t, existing)
	assert.Equal(t, "m1", id)
}

func TestCache_LookupOrRecordMessage_Atomic(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	key := DedupKey{ConversationID: "c1", Content: "contested", Sender: SenderUser}

	const numGoroutines = 100
	var mu sync.Mutex
	winners := 0
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(n int) {
			defer wg.Done()
			if _, existing := cache.LookupOrRecordMessage(key, fmt.Sprintf("m%d", n)); !existing {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one recording should win")
}

func TestCache_DedupExpiry(t *testing.T) {
	cache := NewCache(10*time.Millisecond, 100)
	defer cache.Close()

	key := DedupKey{ConversationID: "c1", Content: "hi", Sender: SenderUser}
	cache.RecordMessage(key, "m1")

	_, ok := cache.LookupMessage(key)
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)

	_, ok = cache.LookupMessage(key)
	assert.False(t, ok, "entry should expire after TTL")
}

func TestCache_DedupEviction(t *testing.T) {
	cache := NewCache(5*time.Minute, 3)
	defer cache.Close()

	keys := make([]DedupKey, 4)
	for i := range keys {
		keys[i] = DedupKey{ConversationID: "c1", Content: fmt.Sprintf("msg %d", i), Sender: SenderUser}
	}

	cache.RecordMessage(keys[0], "m0")
	cache.RecordMessage(keys[1], "m1")
	cache.RecordMessage(keys[2], "m2")

	// Fourth entry evicts the oldest
	cache.RecordMessage(keys[3], "m3")

	_, ok := cache.LookupMessage(keys[0])
	assert.False(t, ok, "oldest entry should be evicted")
	for i := 1; i < 4; i++ {
		_, ok := cache.LookupMessage(keys[i])
		assert.True(t, ok)
	}
}

func TestCache_RunCleanup_RemovesExpired(t *testing.T) {
	cache := NewCache(10*time.Millisecond, 100)
	defer cache.Close()

	cache.RecordMessage(DedupKey{ConversationID: "c1", Content: "a", Sender: SenderUser}, "m1")
	cache.RecordMessage(DedupKey{ConversationID: "c1", Content: "b", Sender: SenderUser}, "m2")

	time.Sleep(20 * time.Millisecond)
	cache.runCleanup()

	cache.mu.RLock()
	remaining := len(cache.dedup)
	cache.mu.RUnlock()
	assert.Equal(t, 0, remaining, "cleanup should remove expired entries")
}

func TestCache_PutGetConversation(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	cache.PutConversation(&Summary{ID: "c1", Title: "hello"})

	got, ok := cache.GetConversation("c1")
	assert.True(t, ok)
	assert.Equal(t, "hello", got.Title)

	_, ok = cache.GetConversation("c2")
	assert.False(t, ok)
}

func TestCache_GetConversation_ReturnsCopy(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	cache.PutConversation(&Summary{ID: "c1", Title: "original"})

	got, _ := cache.GetConversation("c1")
	got.Title = "mutated"

	again, _ := cache.GetConversation("c1")
	assert.Equal(t, "original", again.Title)
}

func TestCache_RemoveConversation_ClearsDedup(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	cache.PutConversation(&Summary{ID: "c1"})
	cache.PutConversation(&Summary{ID: "c2"})
	cache.RecordMessage(DedupKey{ConversationID: "c1", Content: "a", Sender: SenderUser}, "m1")
	cache.RecordMessage(DedupKey{ConversationID: "c2", Content: "a", Sender: SenderUser}, "m2")

	cache.RemoveConversation("c1")

	_, ok := cache.GetConversation("c1")
	assert.False(t, ok)
	_, ok = cache.LookupMessage(DedupKey{ConversationID: "c1", Content: "a", Sender: SenderUser})
	assert.False(t, ok, "dedup entries for the removed conversation should be gone")
	_, ok = cache.LookupMessage(DedupKey{ConversationID: "c2", Content: "a", Sender: SenderUser})
	assert.True(t, ok, "other conversations' dedup entries must survive")
}

func TestCache_MergeConversations_ServerWins(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	cache.PutConversation(&Summary{ID: "c1", Title: "local title"})

	serverTime := time.Now()
	cache.MergeConversations([]Summary{
		{ID: "c1", Title: "server title", LastMessageAt: serverTime},
		{ID: "c2", Title: "new from server"},
	})

	got, _ := cache.GetConversation("c1")
	assert.Equal(t, "server title", got.Title)
	assert.Equal(t, serverTime, got.LastMessageAt)

	_, ok := cache.GetConversation("c2")
	assert.True(t, ok)
}

func TestCache_MergeConversations_KeepsLocalOnly(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	// A conversation the server does not know about (e.g. degraded create)
	// must not be dropped by a merge.
	cache.PutConversation(&Summary{ID: "local-only"})
	cache.MergeConversations([]Summary{{ID: "c1"}})

	_, ok := cache.GetConversation("local-only")
	assert.True(t, ok)
}

func TestCache_Snapshot_SortedDescending(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	now := time.Now()
	cache.PutConversation(&Summary{ID: "old", LastMessageAt: now.Add(-2 * time.Hour)})
	cache.PutConversation(&Summary{ID: "new", LastMessageAt: now})
	cache.PutConversation(&Summary{ID: "mid", LastMessageAt: now.Add(-1 * time.Hour)})

	snap := cache.Snapshot()
	assert.Len(t, snap, 3)
	assert.Equal(t, "new", snap[0].ID)
	assert.Equal(t, "mid", snap[1].ID)
	assert.Equal(t, "old", snap[2].ID)
}

func TestCache_Snapshot_CreatedAtFallback(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	now := time.Now()
	// No messages yet: only CreatedAt is set
	cache.PutConversation(&Summary{ID: "fresh", CreatedAt: now})
	cache.PutConversation(&Summary{ID: "active", LastMessageAt: now.Add(-time.Minute)})

	snap := cache.Snapshot()
	assert.Equal(t, "fresh", snap[0].ID, "CreatedAt should order conversations without messages")
}

func TestCache_Snapshot_Empty(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	assert.Empty(t, cache.Snapshot())
}

func TestCache_TouchConversation(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	now := time.Now()
	cache.PutConversation(&Summary{ID: "c1", Title: "old", LastMessageAt: now.Add(-time.Hour)})
	cache.PutConversation(&Summary{ID: "c2", LastMessageAt: now.Add(-time.Minute)})

	cache.TouchConversation("c1", "new title", now)

	got, _ := cache.GetConversation("c1")
	assert.Equal(t, "new title", got.Title)

	// Touched conversation moves to the front of the snapshot ordering
	snap := cache.Snapshot()
	assert.Equal(t, "c1", snap[0].ID)
}

func TestCache_TouchConversation_CreatesMissing(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	defer cache.Close()

	now := time.Now()
	cache.TouchConversation("brand-new", "title", now)

	got, ok := cache.GetConversation("brand-new")
	assert.True(t, ok)
	assert.Equal(t, "title", got.Title)
	assert.Equal(t, now, got.CreatedAt)
}

func TestCache_Concurrent(t *testing.T) {
	cache := NewCache(5*time.Minute, 1000)
	defer cache.Close()

	const numGoroutines = 50
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", n%5)
			for j := 0; j < 50; j++ {
				key := DedupKey{ConversationID: id, Content: fmt.Sprintf("msg %d", j), Sender: SenderUser}
				cache.RecordMessage(key, "m")
				cache.LookupMessage(key)
				cache.TouchConversation(id, "t", time.Now())
				cache.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	cache.RecordMessage(DedupKey{ConversationID: "final", Content: "x", Sender: SenderUser}, "m")
	_, ok := cache.LookupMessage(DedupKey{ConversationID: "final", Content: "x", Sender: SenderUser})
	assert.True(t, ok)
}

func TestCache_Close_Idempotent(t *testing.T) {
	cache := NewCache(5*time.Minute, 100)
	cache.Close()
	cache.Close()
}

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "short", TruncateTitle("short"))
	assert.Equal(t, "你好附近的醫院", TruncateTitle("你好附近的醫院"))

	long := "this message is definitely longer than twenty characters"
	truncated := TruncateTitle(long)
	assert.Equal(t, "this message is defi...", truncated)

	// Exactly at the limit: no ellipsis
	exact := "12345678901234567890"
	assert.Equal(t, exact, TruncateTitle(exact))

	// CJK content past the limit is cut on rune boundaries
	cjk := "這是一段非常長的中文訊息內容應該要被截斷才對喔"
	got := TruncateTitle(cjk)
	assert.Equal(t, "這是一段非常長的中文訊息內容應該要被截斷...", got)
}
