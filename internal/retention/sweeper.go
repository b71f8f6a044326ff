// Package retention prunes stored sessions past their retention period.
package retention

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/clock"
	"github.com/goodtune/rollcall/internal/metrics"
	"github.com/goodtune/rollcall/internal/storage"
)

const (
	DefaultMaxAge   = 7 * 24 * time.Hour
	DefaultInterval = 24 * time.Hour

	sweepTimeout = time.Minute
)

// Sweeper deletes sessions that started more than maxAge ago, once at
// startup and then every interval.
type Sweeper struct {
	sessions storage.SessionStore
	maxAge   time.Duration
	interval time.Duration
	clock    clock.Clock
	logger   zerolog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewSweeper creates a sweeper. Non-positive durations select the defaults.
func NewSweeper(sessions storage.SessionStore, maxAge, interval time.Duration, c clock.Clock, logger zerolog.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if c == nil {
		c = clock.Real{}
	}
	return &Sweeper{
		sessions: sessions,
		maxAge:   maxAge,
		interval: interval,
		clock:    c,
		logger:   logger.With().Str("component", "retention").Logger(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins sweeping in the background.
func (s *Sweeper) Start() {
	go s.run()
	s.logger.Info().
		Dur("max_age", s.maxAge).
		Dur("interval", s.interval).
		Msg("Session retention started")
}

// Stop halts the sweeper and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		<-s.done
		s.logger.Info().Msg("Session retention stopped")
	})
}

func (s *Sweeper) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweepAndLog()
		select {
		case <-ticker.C:
		case <-s.stopChan:
			return
		}
	}
}

func (s *Sweeper) sweepAndLog() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to prune old sessions")
	}
}

// Sweep deletes expired sessions now and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.maxAge)
	n, err := s.sessions.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	metrics.SessionsPruned.Add(float64(n))
	if n > 0 {
		s.logger.Info().
			Int("deleted", n).
			Time("cutoff", cutoff).
			Msg("Old sessions pruned")
	} else {
		s.logger.Debug().Time("cutoff", cutoff).Msg("No sessions to prune")
	}
	return n, nil
}
