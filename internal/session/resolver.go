// ABOUTME: Session identity resolution for attributing anonymous activity.
// ABOUTME: Precedence: active conversation id, stored session id, fresh anon id.

package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// anonPrefix marks session ids generated locally for anonymous sessions.
const anonPrefix = "anon-"

// Storage persists a session id across page loads within the same browsing
// session. Implementations may fail; the resolver tolerates that.
type Storage interface {
	Load() (string, error)
	Save(id string) error
}

// Resolver produces a stable identifier for the current session. It performs
// no network I/O and has no failure mode beyond storage unavailability, which
// degrades to an in-memory id for the current process only.
type Resolver struct {
	mu      sync.Mutex
	current func() string // active conversation id, if any
	storage Storage
	memory  string // fallback when storage is unavailable
	logger  *slog.Logger
}

// NewResolver creates a Resolver. current returns the active conversation id
// (empty when none); it takes precedence over everything else. storage may be
// nil, in which case ids live only in memory.
func NewResolver(current func() string, storage Storage, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if current == nil {
		current = func() string { return "" }
	}
	return &Resolver{
		current: current,
		storage: storage,
		logger:  logger.With("component", "session"),
	}
}

// Resolve returns the session id: the active conversation id if one exists,
// else a previously stored session id, else a freshly generated anonymous id
// that is persisted for reuse.
func (r *Resolver) Resolve() string {
	if id := r.current(); id != "" {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memory != "" {
		return r.memory
	}

	if r.storage != nil {
		if id, err := r.storage.Load(); err == nil && id != "" {
			r.memory = id
			return id
		} else if err != nil {
			r.logger.Debug("session storage unavailable, using in-memory id", "error", err)
		}
	}

	id := anonPrefix + uuid.New().String()
	r.memory = id
	if r.storage != nil {
		if err := r.storage.Save(id); err != nil {
			// Non-fatal: the id survives for this process only
			r.logger.Debug("failed to persist session id", "error", err)
		}
	}
	return id
}
