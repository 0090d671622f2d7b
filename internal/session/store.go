package session

import (
	"context"
	"sync"
	"time"

	"adspack/internal/domain"
	"adspack/internal/infra"
)

// Store holds sessions by id. Get returns domain.ErrNotFound for unknown ids.
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// Retention is how long an expired session is remembered so status calls can
// still answer "expired" instead of "not found".
const Retention = 10 * time.Minute

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	onExpire func(*Session)
}

// NewMemoryStore returns an empty store. onExpire, if set, runs once per
// session when it transitions to expired.
func NewMemoryStore(onExpire func(*Session)) *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session), onExpire: onExpire}
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	s.mu.Lock()
	s.onExpire = m.onExpire
	s.mu.Unlock()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// Len returns the number of remembered sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep expires due sessions and forgets those past Retention. It returns
// how many sessions expired during this pass.
func (m *MemoryStore) Sweep(now time.Time) int {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.RUnlock()

	expired := 0
	var forget []string
	for _, s := range snapshot {
		state, transitioned := s.advance(now)
		if transitioned {
			expired++
		}
		if state == StateExpired {
			if now.Sub(s.ExpiresAt()) >= Retention {
				forget = append(forget, s.ID)
			}
		}
	}

	if len(forget) > 0 {
		m.mu.Lock()
		for _, id := range forget {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
	}
	return expired
}

// Sweeper is implemented by stores that need periodic expiry passes.
type Sweeper interface {
	Sweep(now time.Time) int
}

// RunSweeper calls Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, sw Sweeper, interval time.Duration, now func() time.Time, logger infra.Logger) {
	if interval <= 0 {
		interval = PollInterval
	}
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sw.Sweep(now()); n > 0 {
				logger.Debug().Int("expired", n).Msg("session: expired sessions purged")
			}
		}
	}
}

var _ Store = (*MemoryStore)(nil)
