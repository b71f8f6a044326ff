package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/clock"
	"github.com/goodtune/rollcall/internal/storage"
	"github.com/goodtune/rollcall/internal/storage/memory"
	"github.com/goodtune/rollcall/internal/storage/storagetest"
)

func seed(t *testing.T, sessions storage.SessionStore, starts ...time.Time) []string {
	t.Helper()
	ids := make([]string, 0, len(starts))
	for _, start := range starts {
		s := storagetest.SampleSession(start)
		if err := sessions.Save(context.Background(), s); err != nil {
			t.Fatalf("save: %v", err)
		}
		ids = append(ids, s.ID)
	}
	return ids
}

func TestSweep(t *testing.T) {
	store := memory.New()
	now := storagetest.Base.Add(30 * 24 * time.Hour)
	ids := seed(t, store.Sessions(),
		now.Add(-10*24*time.Hour),
		now.Add(-8*24*time.Hour),
		now.Add(-6*24*time.Hour),
		now.Add(-time.Hour),
	)

	s := NewSweeper(store.Sessions(), 0, 0, clock.NewManual(now), zerolog.Nop())
	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 sessions pruned, got %d", n)
	}

	for i, id := range ids {
		_, err := store.Sessions().Load(context.Background(), id)
		expired := i < 2
		if expired && !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("session %d should be pruned, got %v", i, err)
		}
		if !expired && err != nil {
			t.Errorf("session %d should be kept, got %v", i, err)
		}
	}

	if n, _ := s.Sweep(context.Background()); n != 0 {
		t.Errorf("second sweep should be a no-op, pruned %d", n)
	}
}

func TestSweepCustomMaxAge(t *testing.T) {
	store := memory.New()
	now := storagetest.Base.Add(48 * time.Hour)
	seed(t, store.Sessions(), now.Add(-3*time.Hour), now.Add(-time.Hour))

	s := NewSweeper(store.Sessions(), 2*time.Hour, time.Hour, clock.NewManual(now), zerolog.Nop())
	if n, err := s.Sweep(context.Background()); err != nil || n != 1 {
		t.Errorf("expected 1 pruned, got %d (%v)", n, err)
	}
}

func TestStartSweepsImmediately(t *testing.T) {
	store := memory.New()
	now := storagetest.Base.Add(30 * 24 * time.Hour)
	ids := seed(t, store.Sessions(), now.Add(-10*24*time.Hour))

	s := NewSweeper(store.Sessions(), 0, time.Hour, clock.NewManual(now), zerolog.Nop())
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := store.Sessions().Load(context.Background(), ids[0])
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("startup sweep did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Stop()
	s.Stop()
}
