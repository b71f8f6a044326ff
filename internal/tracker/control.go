package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/rollcall/internal/consent"
	"github.com/goodtune/rollcall/internal/export"
	"github.com/goodtune/rollcall/internal/scanner"
	"github.com/goodtune/rollcall/internal/storage"
)

// SetConsent answers the tracking prompt. When remember is set the answer is
// stored and honoured for future sessions.
func (t *Tracker) SetConsent(ctx context.Context, granted, remember bool) error {
	state, err := t.consent.Record(ctx, granted, remember)

	t.mu.Lock()
	defer t.mu.Unlock()

	if state == consent.Granted {
		t.consentState = state
		if t.trackableLocked() {
			t.startLocked(ctx)
		}
	} else {
		t.cleanupLocked()
		t.consentState = state
	}
	return err
}

// ResetConsent forgets the stored preference and stops tracking until
// consent is given again.
func (t *Tracker) ResetConsent(ctx context.Context) error {
	err := t.consent.Reset(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.cleanupLocked()
	t.consentState = consent.Pending
	return err
}

// EnableTracking grants consent for this session only and starts tracking,
// continuing the current session if there is one.
func (t *Tracker) EnableTracking(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.trackableLocked() {
		return fmt.Errorf("no meeting page to track")
	}
	t.consentState = consent.Granted
	t.startLocked(ctx)
	return nil
}

// StopTracking persists the roster and stops polling. The session data stays
// available until the page changes.
func (t *Tracker) StopTracking() {
	t.Cleanup()
}

// Cleanup stops tracking, saving a final snapshot if tracking was consented.
func (t *Tracker) Cleanup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupLocked()
}

// Status reports the tracker state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Status{
		IsTracking:    t.tracking,
		HasConsent:    t.consentState == consent.Granted,
		Consent:       t.consentState.String(),
		Platform:      t.platform,
		URL:           t.url,
		ReportedCount: t.reportedCount,
	}
	if t.strategy != scanner.StrategyNone {
		s.Strategy = t.strategy.String()
	}
	if t.session != nil {
		s.SessionID = t.session.ID
		s.Present, s.Total = t.roster.Counts()
	}
	return s
}

// Session returns a copy of the session being tracked, or false when there
// is none.
func (t *Tracker) Session() (storage.Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return storage.Session{}, false
	}
	s := *t.session
	s.LastUpdated = t.clock.Now()
	s.Participants = t.roster.Participants()
	return s, true
}

// Export builds the export document for the current session.
func (t *Tracker) Export(now time.Time) (export.Document, bool) {
	s, ok := t.Session()
	if !ok {
		return export.Document{}, false
	}
	return export.Build(s, now), true
}
