// Package storagetest holds behaviour checks shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goodtune/rollcall/internal/platform"
	"github.com/goodtune/rollcall/internal/roster"
	"github.com/goodtune/rollcall/internal/storage"
)

// Base is the reference instant used by the checks.
var Base = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// SampleSession builds a session started at start with a two-person roster.
func SampleSession(start time.Time) storage.Session {
	left := start.Add(10 * time.Minute)
	return storage.Session{
		ID:          storage.NewSessionID(start),
		Platform:    platform.GoogleMeet,
		URL:         "https://meet.google.com/abc-defg-hij",
		StartTime:   start,
		LastUpdated: left,
		Participants: []roster.Participant{
			{Name: "Jane Doe", Key: "jane doe", JoinTime: start, CurrentlyPresent: true, TotalSessions: 1},
			{Name: "John Smith", Key: "john smith", JoinTime: start, LeaveTime: &left, TotalSessions: 2},
		},
	}
}

// Run exercises a storage.Store created fresh by open for every subtest.
func Run(t *testing.T, open func(t *testing.T) storage.Store) {
	t.Helper()

	t.Run("save and load", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		session := SampleSession(Base)

		if err := store.Sessions().Save(ctx, session); err != nil {
			t.Fatalf("save: %v", err)
		}
		got, err := store.Sessions().Load(ctx, session.ID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if got.ID != session.ID || got.Platform != platform.GoogleMeet || got.URL != session.URL {
			t.Errorf("unexpected session header: %+v", got)
		}
		if !got.StartTime.Equal(Base) {
			t.Errorf("expected start %v, got %v", Base, got.StartTime)
		}
		if len(got.Participants) != 2 {
			t.Fatalf("expected 2 participants, got %d", len(got.Participants))
		}
		john := got.Participants[1]
		if john.LeaveTime == nil || john.TotalSessions != 2 || john.CurrentlyPresent {
			t.Errorf("unexpected participant after round trip: %+v", john)
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		session := SampleSession(Base)

		if err := store.Sessions().Save(ctx, session); err != nil {
			t.Fatalf("save: %v", err)
		}
		session.Participants = session.Participants[:1]
		if err := store.Sessions().Save(ctx, session); err != nil {
			t.Fatalf("save again: %v", err)
		}
		got, err := store.Sessions().Load(ctx, session.ID)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if len(got.Participants) != 1 {
			t.Errorf("expected last write to win, got %d participants", len(got.Participants))
		}
		list, err := store.Sessions().List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 1 {
			t.Errorf("expected 1 session, got %d", len(list))
		}
	})

	t.Run("missing records", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		if _, err := store.Sessions().Load(ctx, "session_1_missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound from load, got %v", err)
		}
		if err := store.Sessions().Delete(ctx, "session_1_missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound from delete, got %v", err)
		}
		if _, err := store.Sessions().Current(ctx); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound from current, got %v", err)
		}
		if _, err := store.Preferences().Get(ctx); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound from preference, got %v", err)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		for _, offset := range []time.Duration{0, 2 * time.Hour, time.Hour} {
			if err := store.Sessions().Save(ctx, SampleSession(Base.Add(offset))); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		list, err := store.Sessions().List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 3 {
			t.Fatalf("expected 3 sessions, got %d", len(list))
		}
		for i := 1; i < len(list); i++ {
			if list[i].StartTime.After(list[i-1].StartTime) {
				t.Errorf("sessions not sorted newest first: %v after %v", list[i].StartTime, list[i-1].StartTime)
			}
		}
	})

	t.Run("current pointer", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		session := SampleSession(Base)

		if err := store.Sessions().Save(ctx, session); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := store.Sessions().SetCurrent(ctx, session.ID); err != nil {
			t.Fatalf("set current: %v", err)
		}
		current, err := store.Sessions().Current(ctx)
		if err != nil || current != session.ID {
			t.Fatalf("expected current %s, got %q (%v)", session.ID, current, err)
		}

		if err := store.Sessions().Delete(ctx, session.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := store.Sessions().Current(ctx); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("deleting the current session should clear the pointer, got %v", err)
		}

		if err := store.Sessions().SetCurrent(ctx, "session_2_x"); err != nil {
			t.Fatalf("set current: %v", err)
		}
		if err := store.Sessions().SetCurrent(ctx, ""); err != nil {
			t.Fatalf("clear current: %v", err)
		}
		if _, err := store.Sessions().Current(ctx); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected pointer cleared, got %v", err)
		}
	})

	t.Run("delete before", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		old := SampleSession(Base.Add(-8 * 24 * time.Hour))
		older := SampleSession(Base.Add(-30 * 24 * time.Hour))
		recent := SampleSession(Base.Add(-time.Hour))
		for _, s := range []storage.Session{old, older, recent} {
			if err := store.Sessions().Save(ctx, s); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		deleted, err := store.Sessions().DeleteBefore(ctx, Base.Add(-7*24*time.Hour))
		if err != nil {
			t.Fatalf("delete before: %v", err)
		}
		if deleted != 2 {
			t.Errorf("expected 2 deleted, got %d", deleted)
		}
		list, err := store.Sessions().List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 1 || list[0].ID != recent.ID {
			t.Errorf("expected only the recent session to remain, got %+v", list)
		}
	})

	t.Run("clear", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			s := SampleSession(Base.Add(time.Duration(i) * time.Minute))
			if err := store.Sessions().Save(ctx, s); err != nil {
				t.Fatalf("save: %v", err)
			}
			if err := store.Sessions().SetCurrent(ctx, s.ID); err != nil {
				t.Fatalf("set current: %v", err)
			}
		}

		cleared, err := store.Sessions().Clear(ctx)
		if err != nil {
			t.Fatalf("clear: %v", err)
		}
		if cleared != 3 {
			t.Errorf("expected 3 cleared, got %d", cleared)
		}
		list, err := store.Sessions().List(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected no sessions, got %d", len(list))
		}
		if _, err := store.Sessions().Current(ctx); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected pointer cleared, got %v", err)
		}
	})

	t.Run("preferences", func(t *testing.T) {
		store := open(t)
		ctx := context.Background()
		pref := storage.Preference{Consent: storage.ConsentAlways, SetAt: Base}

		if err := store.Preferences().Set(ctx, pref); err != nil {
			t.Fatalf("set preference: %v", err)
		}
		got, err := store.Preferences().Get(ctx)
		if err != nil {
			t.Fatalf("get preference: %v", err)
		}
		if got.Consent != storage.ConsentAlways || !got.SetAt.Equal(Base) {
			t.Errorf("unexpected preference: %+v", got)
		}

		if err := store.Preferences().Clear(ctx); err != nil {
			t.Fatalf("clear preference: %v", err)
		}
		if _, err := store.Preferences().Get(ctx); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after clear, got %v", err)
		}
		if err := store.Preferences().Clear(ctx); err != nil {
			t.Errorf("clearing twice should succeed, got %v", err)
		}
	})
}
