// Package recorder persists roster snapshots off the poll loop.
package recorder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/metrics"
	"github.com/goodtune/rollcall/internal/storage"
)

const writeTimeout = 5 * time.Second

// Recorder writes session snapshots to a primary store from a single
// background goroutine. Save never blocks: if a snapshot is still waiting
// to be written when a newer one arrives, the older one is replaced.
type Recorder struct {
	primary  storage.SessionStore
	fallback storage.SessionStore
	logger   zerolog.Logger

	mu      sync.Mutex
	pending *storage.Session
	closed  bool

	// writeMu keeps writes in submission order.
	writeMu sync.Mutex

	wake chan struct{}
	done chan struct{}
}

// New starts a recorder. fallback may be nil.
func New(primary, fallback storage.SessionStore, logger zerolog.Logger) *Recorder {
	r := &Recorder{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "recorder").Logger(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Save queues session for writing and returns immediately. Snapshots
// submitted after Close are dropped.
func (r *Recorder) Save(session storage.Session) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.logger.Warn().Str("session_id", session.ID).Msg("Recorder closed, dropping snapshot")
		return
	}
	if r.pending != nil && r.pending.ID != session.ID {
		// A different session is still queued; write it now so a session
		// switch never loses the previous session's final state.
		prev := *r.pending
		r.pending = nil
		r.mu.Unlock()
		r.write(prev)
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			r.write(session)
			return
		}
	}
	r.pending = &session
	select {
	case r.wake <- struct{}{}:
	default:
	}
	r.mu.Unlock()
}

// Flush writes any pending snapshot synchronously.
func (r *Recorder) Flush() {
	if s, ok := r.take(); ok {
		r.write(s)
	}
}

// Close writes the pending snapshot, if any, and stops the writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.wake)
	r.mu.Unlock()

	<-r.done
}

// Load reads a session, trying the fallback store when the primary does not
// have it.
func (r *Recorder) Load(ctx context.Context, id string) (*storage.Session, error) {
	session, err := r.primary.Load(ctx, id)
	if err == nil || r.fallback == nil {
		return session, err
	}
	if fb, fbErr := r.fallback.Load(ctx, id); fbErr == nil {
		return fb, nil
	}
	return nil, err
}

// List returns the sessions known to the primary store plus any that only
// reached the fallback.
func (r *Recorder) List(ctx context.Context) ([]storage.Session, error) {
	sessions, err := r.primary.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if r.fallback == nil {
		return sessions, nil
	}

	extra, err := r.fallback.List(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to list fallback sessions")
		return sessions, nil
	}
	seen := make(map[string]struct{}, len(sessions))
	for _, s := range sessions {
		seen[s.ID] = struct{}{}
	}
	for _, s := range extra {
		if _, ok := seen[s.ID]; !ok {
			sessions = append(sessions, s)
		}
	}
	storage.SortNewestFirst(sessions)
	return sessions, nil
}

// Clear removes every stored session from both stores.
func (r *Recorder) Clear(ctx context.Context) (int, error) {
	r.mu.Lock()
	r.pending = nil
	r.mu.Unlock()

	n, err := r.primary.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear sessions: %w", err)
	}
	if r.fallback != nil {
		if m, err := r.fallback.Clear(ctx); err == nil {
			n += m
		}
	}
	return n, nil
}

func (r *Recorder) take() (storage.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return storage.Session{}, false
	}
	s := *r.pending
	r.pending = nil
	return s, true
}

func (r *Recorder) run() {
	defer close(r.done)
	for range r.wake {
		r.Flush()
	}
	// Channel closed by Close; drain what is left.
	r.Flush()
}

func (r *Recorder) write(session storage.Session) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	err := r.primary.Save(ctx, session)
	if err == nil {
		metrics.PersistWrites.WithLabelValues("primary").Inc()
		r.logger.Debug().
			Str("session_id", session.ID).
			Int("participants", len(session.Participants)).
			Msg("Saved session snapshot")
		return
	}

	metrics.PersistFailures.WithLabelValues("primary").Inc()
	r.logger.Error().Err(err).Str("session_id", session.ID).Msg("Failed to save session snapshot")

	if r.fallback == nil {
		metrics.PersistDropped.Inc()
		return
	}

	if err := r.fallback.Save(ctx, session); err != nil {
		metrics.PersistFailures.WithLabelValues("fallback").Inc()
		metrics.PersistDropped.Inc()
		r.logger.Error().Err(err).Str("session_id", session.ID).Msg("Fallback save failed, dropping snapshot")
		return
	}
	metrics.PersistWrites.WithLabelValues("fallback").Inc()
	r.logger.Warn().Str("session_id", session.ID).Msg("Saved session snapshot to fallback store")
}

// SetCurrent records id as the active session in the primary store.
func (r *Recorder) SetCurrent(ctx context.Context, id string) error {
	if err := r.primary.SetCurrent(ctx, id); err != nil {
		return fmt.Errorf("set current session: %w", err)
	}
	return nil
}

// Current returns the active session id from the primary store.
func (r *Recorder) Current(ctx context.Context) (string, error) {
	return r.primary.Current(ctx)
}
