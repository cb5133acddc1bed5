// README: In-memory session registry with per-user serialization and idle eviction.
package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"routebot/internal/infra"
	"routebot/internal/types"
)

// Store owns every live Session. Get, Put and Delete must be called while
// holding the user's lock from Lock; the map itself is guarded separately so
// different users never wait on each other.
type Store struct {
	mu       sync.Mutex
	sessions map[types.UserID]Session
	locks    map[types.UserID]*userLock

	idleTimeout time.Duration
	now         func() time.Time
	logger      zerolog.Logger
	metrics     *infra.Metrics
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func NewStore(idleTimeout time.Duration, logger zerolog.Logger, metrics *infra.Metrics) *Store {
	return &Store{
		sessions:    make(map[types.UserID]Session),
		locks:       make(map[types.UserID]*userLock),
		idleTimeout: idleTimeout,
		now:         time.Now,
		logger:      logger.With().Str("component", "session_store").Logger(),
		metrics:     metrics,
	}
}

// Lock serializes all work for one user and returns the release func.
func (s *Store) Lock(id types.UserID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &userLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Unlock()
			s.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(s.locks, id)
			}
			s.mu.Unlock()
		})
	}
}

func (s *Store) Get(id types.UserID) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return sess.clone(), true
}

func (s *Store) Put(sess Session) {
	s.mu.Lock()
	s.sessions[sess.UserID] = sess.clone()
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(n)
}

func (s *Store) Delete(id types.UserID) {
	s.mu.Lock()
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	s.metrics.SetActiveSessions(n)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Expired reports whether sess has been idle longer than the configured timeout.
func (s *Store) Expired(sess Session, now time.Time) bool {
	return s.idleTimeout > 0 && now.Sub(sess.LastActivity) > s.idleTimeout
}

// Sweep evicts idle sessions and returns their user ids. Each candidate is
// re-checked under its user lock, so a turn in flight always wins.
func (s *Store) Sweep() []types.UserID {
	now := s.now()
	s.mu.Lock()
	var stale []types.UserID
	for id, sess := range s.sessions {
		if s.Expired(sess, now) {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	evicted := make([]types.UserID, 0, len(stale))
	for _, id := range stale {
		unlock := s.Lock(id)
		if sess, ok := s.Get(id); ok && s.Expired(sess, s.now()) {
			s.Delete(id)
			s.metrics.IncExpired()
			evicted = append(evicted, id)
		}
		unlock()
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done. onExpire may be nil.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration, onExpire func(types.UserID)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted := s.Sweep()
			if len(evicted) > 0 {
				s.logger.Info().Int("count", len(evicted)).Msg("evicted idle sessions")
			}
			if onExpire == nil {
				continue
			}
			for _, id := range evicted {
				onExpire(id)
			}
		}
	}
}
