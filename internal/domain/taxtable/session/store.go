// Package session keeps parsed results in memory between upload, preview and
// download. Entries expire after a configurable TTL measured on an injected
// clock.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/tax-table-converter/internal/domain/taxtable"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// DefaultTTL is how long a session lives without being read.
const DefaultTTL = 30 * time.Minute

// Session is a stored conversion result.
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
	Filename  string
	Vendor    taxtable.Vendor
	Result    *taxtable.ParsedResult
}

// Store is a TTL map of session id to session, safe for concurrent use.
// Reading a session extends its lifetime.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	clock    Clock
	newID    func() (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the random session id generator.
func WithIDGenerator(fn func() (string, error)) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore creates a store. A non-positive ttl selects DefaultTTL and a nil
// clock selects SystemClock.
func NewStore(ttl time.Duration, clock Clock, opts ...Option) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	s := &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		clock:    clock,
		newID:    newUUID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newUUID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// TTL returns the configured lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create stores result under a fresh id.
func (s *Store) Create(result *taxtable.ParsedResult) (*Session, error) {
	if result == nil {
		return nil, fmt.Errorf("create session: nil result")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	for {
		var err error
		id, err = s.newID()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		if _, taken := s.sessions[id]; !taken {
			break
		}
	}

	now := s.clock.Now()
	sess := &Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
		Filename:  result.Filename,
		Vendor:    result.Vendor,
		Result:    result,
	}
	s.sessions[id] = sess
	out := *sess
	return &out, nil
}

// Get returns a snapshot of the session and extends its lifetime. Unknown and
// expired ids both yield taxtable.ErrNotFound.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, taxtable.ErrNotFound
	}
	now := s.clock.Now()
	if !now.Before(sess.ExpiresAt) {
		delete(s.sessions, id)
		return nil, taxtable.ErrNotFound
	}
	sess.ExpiresAt = now.Add(s.ttl)
	out := *sess
	return &out, nil
}

// Delete removes a live session and reports whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	delete(s.sessions, id)
	return s.clock.Now().Before(sess.ExpiresAt)
}

// Sweep drops every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	n := 0
	for _, sess := range s.sessions {
		if now.Before(sess.ExpiresAt) {
			n++
		}
	}
	return n
}
