package session

import (
	"sync"
	"time"

	"adspack/internal/domain"
	"adspack/internal/format"
	"adspack/internal/imagedata"
	"adspack/internal/orchestrator"
)

// Session wraps one generation result with its expiry window. The
// active → expired transition happens once and drops the image buffers.
type Session struct {
	ID        string
	CreatedAt time.Time
	TTL       time.Duration
	Requested []format.Key
	Failures  []orchestrator.Failure
	Provider  string
	Model     string

	mu       sync.Mutex
	images   map[format.Key]imagedata.Image
	expired  bool
	onExpire func(*Session)
}

// New starts a session for res at createdAt.
func New(id string, res orchestrator.Result, createdAt time.Time) *Session {
	images := make(map[format.Key]imagedata.Image, len(res.Images))
	for k, v := range res.Images {
		images[k] = v
	}
	return &Session{
		ID:        id,
		CreatedAt: createdAt,
		TTL:       TTL,
		Requested: append([]format.Key(nil), res.Requested...),
		Failures:  append([]orchestrator.Failure(nil), res.Failures...),
		Provider:  res.Provider,
		Model:     res.Model,
		images:    images,
	}
}

// ExpiresAt is the instant the session stops serving images.
func (s *Session) ExpiresAt() time.Time {
	return s.CreatedAt.Add(s.TTL)
}

// Check evaluates expiry at now and performs the transition if due. It is
// safe to call concurrently; the purge and the expiry hook run once.
func (s *Session) Check(now time.Time) State {
	state, _ := s.advance(now)
	return state
}

// advance is Check that also reports whether this call made the transition.
func (s *Session) advance(now time.Time) (State, bool) {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return StateExpired, false
	}
	if !IsExpired(now, s.CreatedAt, s.TTL) {
		s.mu.Unlock()
		return StateActive, false
	}
	s.expired = true
	s.images = nil
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		hook(s)
	}
	return StateExpired, true
}

// Status is the timer view of a session.
type Status struct {
	ID               string       `json:"session_id"`
	State            State        `json:"state"`
	Expired          bool         `json:"expired"`
	Remaining        string       `json:"remaining"`
	RemainingSeconds int          `json:"remaining_seconds"`
	ExpiresAt        time.Time    `json:"expires_at"`
	Formats          []format.Key `json:"formats"`
}

// Status reports the state and remaining time at now.
func (s *Session) Status(now time.Time) Status {
	state := s.Check(now)
	left := Remaining(now, s.CreatedAt, s.TTL)
	if state == StateExpired {
		left = 0
	}
	st := Status{
		ID:               s.ID,
		State:            state,
		Expired:          state == StateExpired,
		Remaining:        FormatRemaining(left),
		RemainingSeconds: int(left / time.Second),
		ExpiresAt:        s.ExpiresAt().UTC(),
		Formats:          []format.Key{},
	}
	if state == StateActive {
		st.Formats = s.available()
	}
	return st
}

// Images returns a copy of the generated images, or ErrSessionExpired.
func (s *Session) Images(now time.Time) (map[format.Key]imagedata.Image, error) {
	if s.Check(now) == StateExpired {
		return nil, domain.ErrSessionExpired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[format.Key]imagedata.Image, len(s.images))
	for k, v := range s.images {
		out[k] = v
	}
	return out, nil
}

// Image returns one generated image. Formats that failed or were never
// requested yield ErrNotFound.
func (s *Session) Image(now time.Time, key format.Key) (imagedata.Image, error) {
	images, err := s.Images(now)
	if err != nil {
		return imagedata.Image{}, err
	}
	img, ok := images[key]
	if !ok {
		return imagedata.Image{}, domain.ErrNotFound
	}
	return img, nil
}

func (s *Session) available() []format.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]format.Key, 0, len(s.images))
	for _, k := range s.Requested {
		if _, ok := s.images[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
