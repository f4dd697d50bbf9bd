// Package session keeps admin sessions in memory with an expiry.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one authenticated login.
type Session struct {
	Token     string
	Subject   string
	ExpiresAt time.Time
}

// Store holds sessions keyed by token. It is safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]Session
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{ttl: ttl, now: time.Now, sessions: make(map[string]Session)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create starts a session for subject and returns it.
func (s *Store) Create(subject string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{
		Token:     uuid.NewString(),
		Subject:   subject,
		ExpiresAt: s.now().Add(s.ttl),
	}
	s.sessions[sess.Token] = sess
	return sess
}

// Lookup returns the live session for token. An expired session is removed.
func (s *Store) Lookup(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, token)
		return Session{}, false
	}
	return sess, true
}

// Revoke ends the session for token. Unknown tokens are ignored.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Sweep drops every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored sessions, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
