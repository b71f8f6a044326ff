package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
type Store interface {
	Close() error
	Sessions() SessionStore
	Preferences() PreferenceStore
}

// SessionStore persists meeting sessions and their rosters.
type SessionStore interface {
	// Save writes the full session, replacing any previous copy.
	Save(ctx context.Context, session Session) error
	Load(ctx context.Context, id string) (*Session, error)
	// List returns every readable session, newest first. Malformed records
	// are skipped.
	List(ctx context.Context) ([]Session, error)
	Delete(ctx context.Context, id string) error
	// Clear removes every session and the current-session pointer.
	Clear(ctx context.Context) (int, error)
	// DeleteBefore removes sessions that started before cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
	SetCurrent(ctx context.Context, id string) error
	Current(ctx context.Context) (string, error)
}

// PreferenceStore holds the remembered tracking consent.
type PreferenceStore interface {
	Get(ctx context.Context) (*Preference, error)
	Set(ctx context.Context, pref Preference) error
	Clear(ctx context.Context) error
}
