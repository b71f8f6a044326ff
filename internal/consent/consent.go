// Package consent decides whether a session may be tracked, honouring a
// remembered preference for a limited time.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/clock"
	"github.com/goodtune/rollcall/internal/storage"
)

// DefaultMaxAge is how long a remembered preference is honoured.
const DefaultMaxAge = 30 * 24 * time.Hour

// State is the tracker's consent state.
type State int

const (
	// Pending means nobody has answered yet; tracking waits.
	Pending State = iota
	Granted
	Denied
)

func (s State) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "pending"
	}
}

// Manager reads and records consent decisions.
type Manager struct {
	prefs    storage.PreferenceStore
	fallback storage.Consent
	maxAge   time.Duration
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewManager creates a consent manager. fallback applies when no fresh
// preference is stored; a non-positive maxAge uses DefaultMaxAge.
func NewManager(prefs storage.PreferenceStore, fallback storage.Consent, maxAge time.Duration, c clock.Clock, logger zerolog.Logger) *Manager {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Manager{
		prefs:    prefs,
		fallback: fallback,
		maxAge:   maxAge,
		clock:    c,
		logger:   logger.With().Str("component", "consent").Logger(),
	}
}

// Initial returns the consent state a new session starts in.
func (m *Manager) Initial(ctx context.Context) State {
	pref, err := m.prefs.Get(ctx)
	switch {
	case err == nil && pref.Fresh(m.clock.Now(), m.maxAge):
		switch pref.Consent {
		case storage.ConsentAlways:
			m.logger.Info().Msg("Tracking allowed by stored preference")
			return Granted
		case storage.ConsentNever:
			m.logger.Info().Msg("Tracking disabled by stored preference")
			return Denied
		}
	case err == nil:
		m.logger.Debug().Time("set_at", pref.SetAt).Msg("Stored preference expired")
	case !errors.Is(err, storage.ErrNotFound):
		m.logger.Warn().Err(err).Msg("Error checking stored preference")
	}

	switch m.fallback {
	case storage.ConsentAlways:
		return Granted
	case storage.ConsentNever:
		return Denied
	default:
		return Pending
	}
}

// Record stores a decision when remember is set and returns the resulting
// state.
func (m *Manager) Record(ctx context.Context, granted, remember bool) (State, error) {
	state := Denied
	choice := storage.ConsentNever
	if granted {
		state = Granted
		choice = storage.ConsentAlways
	}
	if !remember {
		return state, nil
	}
	pref := storage.Preference{Consent: choice, SetAt: m.clock.Now()}
	if err := m.prefs.Set(ctx, pref); err != nil {
		return state, fmt.Errorf("store preference: %w", err)
	}
	m.logger.Info().Str("preference", string(choice)).Msg("Stored tracking preference")
	return state, nil
}

// Reset forgets any stored preference.
func (m *Manager) Reset(ctx context.Context) error {
	if err := m.prefs.Clear(ctx); err != nil {
		return fmt.Errorf("clear preference: %w", err)
	}
	return nil
}

// Preference returns the stored preference, or nil.
func (m *Manager) Preference(ctx context.Context) *storage.Preference {
	pref, err := m.prefs.Get(ctx)
	if err != nil {
		return nil
	}
	return pref
}
