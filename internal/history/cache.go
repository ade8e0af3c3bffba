// ABOUTME: In-memory cache of conversation summaries and the message dedup index.
// ABOUTME: TTL-based and size-limited; shared by the manager and synchronizer.

package history

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// dedupEntry stores the recorded message id, timestamp, and list element for
// a dedup key.
type dedupEntry struct {
	messageID string
	timestamp time.Time
	element   *list.Element
}

// Cache holds the engine's local view: a conversation summary table and the
// message deduplication index. It is a view of remote state, never a source
// of truth, and is not persisted beyond the process lifetime.
//
// The dedup index is TTL-based and size-limited, with a doubly-linked list
// maintaining insertion order for O(1) eviction. Reads never touch the
// network; a miss means "unknown", not an error.
type Cache struct {
	mu            sync.RWMutex
	conversations map[string]*Summary
	dedup         map[DedupKey]*dedupEntry
	order         *list.List // dedup keys in insertion order (oldest at front)
	ttl           time.Duration
	maxSize       int
	done          chan struct{}
	closed        bool
}

// NewCache creates a cache whose dedup index expires entries after ttl and
// holds at most maxSize entries. A background goroutine periodically cleans
// up expired dedup entries.
func NewCache(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		conversations: make(map[string]*Summary),
		dedup:         make(map[DedupKey]*dedupEntry),
		order:         list.New(),
		ttl:           ttl,
		maxSize:       maxSize,
		done:          make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// LookupMessage returns the message id previously recorded for key, if any.
func (c *Cache) LookupMessage(key DedupKey) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.dedup[key]
	if !ok || time.Since(entry.timestamp) >= c.ttl {
		return "", false
	}
	return entry.messageID, true
}

// RecordMessage records that a message with the given key has been persisted
// (or locally adopted) under messageID. If the index is at capacity, the
// oldest entry is evicted to make room.
func (c *Cache) RecordMessage(key DedupKey, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordLocked(key, messageID)
}

// LookupOrRecordMessage atomically looks up key and, if absent, records
// messageID for it. It returns the id now associated with the key and whether
// the key was already present. This prevents TOCTOU races between separate
// lookup and record calls.
func (c *Cache) LookupOrRecordMessage(key DedupKey, messageID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.dedup[key]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return entry.messageID, true
	}

	c.recordLocked(key, messageID)
	return messageID, false
}

// recordLocked is the internal record implementation. Must be called with mu held.
func (c *Cache) recordLocked(key DedupKey, messageID string) {
	now := time.Now()

	if entry, exists := c.dedup[key]; exists {
		entry.messageID = messageID
		entry.timestamp = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.dedup) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(key)
	c.dedup[key] = &dedupEntry{
		messageID: messageID,
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest dedup entry. Must be called with mu held.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(DedupKey)
	c.order.Remove(front)
	delete(c.dedup, key)
}

// PutConversation stores or replaces a conversation summary.
func (c *Cache) PutConversation(summary *Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := *summary
	c.conversations[summary.ID] = &copied
}

// GetConversation returns the cached summary for id, if present.
func (c *Cache) GetConversation(id string) (*Summary, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	summary, ok := c.conversations[id]
	if !ok {
		return nil, false
	}
	copied := *summary
	return &copied, true
}

// RemoveConversation deletes a conversation summary and every dedup entry
// belonging to it. Used by optimistic delete: the summary disappears from
// local views before the network call resolves.
func (c *Cache) RemoveConversation(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.conversations, id)

	for key, entry := range c.dedup {
		if key.ConversationID == id {
			c.order.Remove(entry.element)
			delete(c.dedup, key)
		}
	}
}

// MergeConversations merges server-provided summaries into the table. Server
// entries win on conflicting title and timestamps; locally known conversations
// absent from the server response are kept, since an unreachable or partial
// server listing must not silently drop local state.
func (c *Cache) MergeConversations(summaries []Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range summaries {
		copied := summaries[i]
		c.conversations[copied.ID] = &copied
	}
}

// TouchConversation updates a conversation's title and last-message time,
// creating the summary if it is not yet cached. Ordering is derived from
// LastMessageAt, so touching a conversation moves it to the front of any
// sorted snapshot.
func (c *Cache) TouchConversation(id, title string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summary, ok := c.conversations[id]
	if !ok {
		summary = &Summary{ID: id, CreatedAt: at}
		c.conversations[id] = summary
	}
	summary.Title = title
	summary.LastMessageAt = at
}

// Snapshot returns all cached summaries sorted descending by LastMessageAt,
// falling back to CreatedAt for conversations that have no messages yet.
func (c *Cache) Snapshot() []Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Summary, 0, len(c.conversations))
	for _, summary := range c.conversations {
		out = append(out, *summary)
	}

	sort.Slice(out, func(i, j int) bool {
		return sortKey(out[i]).After(sortKey(out[j]))
	})
	return out
}

// sortKey returns the timestamp a summary sorts by.
func sortKey(s Summary) time.Time {
	if !s.LastMessageAt.IsZero() {
		return s.LastMessageAt
	}
	return s.CreatedAt
}

// cleanup runs in a background goroutine, periodically removing expired
// dedup entries.
func (c *Cache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all expired dedup entries.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.dedup {
		if now.Sub(entry.timestamp) > c.ttl {
			c.order.Remove(entry.element)
			delete(c.dedup, key)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
