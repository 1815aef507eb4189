package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/observability"
)

// DefaultSessionTTL is how long an untouched session is kept.
const DefaultSessionTTL = 30 * time.Minute

// Store keeps sessions keyed by a random id and expires idle ones.
type Store struct {
	cfg     Config
	fetcher Fetcher
	logger  *zap.Logger
	ttl     time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*storeEntry
}

type storeEntry struct {
	session  *Session
	lastSeen time.Time
}

// NewStore returns an empty store. ttl <= 0 uses DefaultSessionTTL.
func NewStore(cfg Config, fetcher Fetcher, logger *zap.Logger, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		cfg:      cfg,
		fetcher:  fetcher,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*storeEntry),
	}
}

// Get returns a live session and refreshes its idle timer.
func (st *Store) Get(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	now := st.now()
	if now.Sub(e.lastSeen) > st.ttl {
		st.removeLocked(id)
		return nil, false
	}
	e.lastSeen = now
	return e.session, true
}

// Create registers a new idle session.
func (st *Store) Create() *Session {
	s := NewSession(uuid.NewString(), st.cfg, st.fetcher, st.logger)
	st.mu.Lock()
	st.sessions[s.ID()] = &storeEntry{session: s, lastSeen: st.now()}
	n := len(st.sessions)
	st.mu.Unlock()
	observability.ActiveSessions.Set(float64(n))
	return s
}

// GetOrCreate returns the session for id, or a new one when id is unknown or expired.
// created reports whether the session is new and still needs Init.
func (st *Store) GetOrCreate(id string) (s *Session, created bool) {
	if s, ok := st.Get(id); ok {
		return s, false
	}
	return st.Create(), true
}

// Sweep drops sessions idle longer than the TTL and returns how many were removed.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()
	removed := 0
	for id, e := range st.sessions {
		if now.Sub(e.lastSeen) > st.ttl {
			st.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Run sweeps at interval until ctx is done.
func (st *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = st.ttl / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				st.logger.Debug("expired idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of stored sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *Store) removeLocked(id string) {
	e := st.sessions[id]
	delete(st.sessions, id)
	e.session.mu.Lock()
	if e.session.cancel != nil {
		e.session.cancel()
	}
	e.session.mu.Unlock()
	observability.ActiveSessions.Set(float64(len(st.sessions)))
}
