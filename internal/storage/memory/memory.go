// Package memory is an in-process storage backend. It serves as the local
// fallback when the primary store is unreachable and as a test double.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/goodtune/rollcall/internal/roster"
	"github.com/goodtune/rollcall/internal/storage"
)

// Store implements storage.Store in memory.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]storage.Session
	current  string
	pref     *storage.Preference
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{sessions: make(map[string]storage.Session)}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Sessions returns the session store.
func (s *Store) Sessions() storage.SessionStore { return &sessionStore{s} }

// Preferences returns the preference store.
func (s *Store) Preferences() storage.PreferenceStore { return &preferenceStore{s} }

type sessionStore struct{ s *Store }

func (m *sessionStore) Save(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.sessions[session.ID] = copySession(session)
	return nil
}

func (m *sessionStore) Load(ctx context.Context, id string) (*storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	session, ok := m.s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := copySession(session)
	return &c, nil
}

func (m *sessionStore) List(ctx context.Context) ([]storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	sessions := make([]storage.Session, 0, len(m.s.sessions))
	for _, session := range m.s.sessions {
		sessions = append(sessions, copySession(session))
	}
	m.s.mu.RUnlock()

	storage.SortNewestFirst(sessions)
	return sessions, nil
}

func (m *sessionStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.sessions[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.s.sessions, id)
	if m.s.current == id {
		m.s.current = ""
	}
	return nil
}

func (m *sessionStore) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	n := len(m.s.sessions)
	m.s.sessions = make(map[string]storage.Session)
	m.s.current = ""
	return n, nil
}

func (m *sessionStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	deleted := 0
	for id, session := range m.s.sessions {
		if session.Started().Before(cutoff) {
			delete(m.s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (m *sessionStore) SetCurrent(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.current = id
	return nil
}

func (m *sessionStore) Current(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if m.s.current == "" {
		return "", storage.ErrNotFound
	}
	return m.s.current, nil
}

type preferenceStore struct{ s *Store }

func (m *preferenceStore) Get(ctx context.Context) (*storage.Preference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	if m.s.pref == nil {
		return nil, storage.ErrNotFound
	}
	p := *m.s.pref
	return &p, nil
}

func (m *preferenceStore) Set(ctx context.Context, pref storage.Preference) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.pref = &pref
	return nil
}

func (m *preferenceStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.pref = nil
	return nil
}

// copySession detaches the stored roster from the caller's slice.
func copySession(s storage.Session) storage.Session {
	participants := make([]roster.Participant, len(s.Participants))
	for i, p := range s.Participants {
		if p.LeaveTime != nil {
			t := *p.LeaveTime
			p.LeaveTime = &t
		}
		participants[i] = p
	}
	s.Participants = participants
	return s
}
