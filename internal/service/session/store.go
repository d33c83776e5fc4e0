package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/persona-relay/internal/model/chat"
)

var (
	ErrIDRequired = errors.New("chat id is required")
	ErrNotFound   = errors.New("session not found")
)

// Entry wraps a session with its own lock. Callers must hold the lock for any
// read or write of the session fields.
type Entry struct {
	mu      sync.Mutex
	session *chat.Session
}

// Lock acquires the per-session lock and returns the guarded session.
func (e *Entry) Lock() *chat.Session {
	e.mu.Lock()
	return e.session
}

// Unlock releases the per-session lock.
func (e *Entry) Unlock() {
	e.mu.Unlock()
}

// OpenFunc builds the state for a session seen for the first time.
type OpenFunc func(ctx context.Context) (*chat.Session, error)

// Store is the process-local registry of live sessions.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Entry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Entry)}
}

// GetOrCreate returns the entry for id, calling open when none exists yet.
// open runs under the store lock so concurrent first turns for the same id
// produce exactly one session and one model context.
func (s *Store) GetOrCreate(ctx context.Context, id string, open OpenFunc) (*Entry, bool, error) {
	if id == "" {
		return nil, false, ErrIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.sessions[id]; ok {
		return entry, false, nil
	}

	sess, err := open(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("open session %s: %w", id, err)
	}
	sess.ID = id

	entry := &Entry{session: sess}
	s.sessions[id] = entry
	return entry, true, nil
}

// Get retrieves the entry for id.
func (s *Store) Get(id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// Delete removes id from the store and returns the removed entry. A turn that
// already holds the entry finishes against the detached session.
func (s *Store) Delete(id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.sessions, id)
	return entry, nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Snapshot returns a summary of every live session as of now, ordered by
// chat id.
func (s *Store) Snapshot(now time.Time) []chat.Summary {
	s.mu.Lock()
	entries := make([]*Entry, 0, len(s.sessions))
	for _, entry := range s.sessions {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	summaries := make([]chat.Summary, 0, len(entries))
	for _, entry := range entries {
		sess := entry.Lock()
		summaries = append(summaries, sess.Summarize(now))
		entry.Unlock()
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ChatID < summaries[j].ChatID })
	return summaries
}

// Sweep removes sessions whose last activity is older than idleTTL and
// returns their final summaries.
func (s *Store) Sweep(now time.Time, idleTTL time.Duration) []chat.Summary {
	if idleTTL <= 0 {
		return nil
	}

	s.mu.Lock()
	candidates := make(map[string]*Entry, len(s.sessions))
	for id, entry := range s.sessions {
		candidates[id] = entry
	}
	s.mu.Unlock()

	var expired []chat.Summary
	for id, entry := range candidates {
		sess := entry.Lock()
		if now.Sub(sess.LastActivity) > idleTTL {
			// lock order is always entry then store
			s.mu.Lock()
			if current, ok := s.sessions[id]; ok && current == entry {
				delete(s.sessions, id)
				expired = append(expired, sess.Summarize(now))
			}
			s.mu.Unlock()
		}
		entry.Unlock()
	}
	return expired
}
