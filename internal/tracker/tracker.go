// Package tracker owns the poll loop that turns page snapshots into a
// persisted attendance roster for one meeting at a time.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/clock"
	"github.com/goodtune/rollcall/internal/consent"
	"github.com/goodtune/rollcall/internal/metrics"
	"github.com/goodtune/rollcall/internal/names"
	"github.com/goodtune/rollcall/internal/platform"
	"github.com/goodtune/rollcall/internal/recorder"
	"github.com/goodtune/rollcall/internal/roster"
	"github.com/goodtune/rollcall/internal/scanner"
	"github.com/goodtune/rollcall/internal/source"
	"github.com/goodtune/rollcall/internal/storage"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultDebounce     = time.Second
	DefaultResumeWindow = 5 * time.Minute
)

// Options tunes a Tracker. Zero values select the defaults.
type Options struct {
	PollInterval time.Duration
	Debounce     time.Duration
	// ResumeWindow is how recently a stored session for the same URL must
	// have been updated for a restart to continue it.
	ResumeWindow time.Duration
	// AnyPage tracks pages on unrecognised hosts with the generic profile.
	AnyPage    bool
	Clock      clock.Clock
	Normalizer *names.Normalizer
}

// Status summarises the tracker for status queries.
type Status struct {
	IsTracking    bool              `json:"isTracking"`
	HasConsent    bool              `json:"hasConsent"`
	Consent       string            `json:"consent"`
	Platform      platform.Platform `json:"platform"`
	URL           string            `json:"url,omitempty"`
	SessionID     string            `json:"sessionId,omitempty"`
	Present       int               `json:"present"`
	Total         int               `json:"total"`
	ReportedCount int               `json:"reportedCount"`
	Strategy      string            `json:"strategy,omitempty"`
}

// Tracker tracks one meeting page.
type Tracker struct {
	src      source.Source
	scan     *scanner.Scanner
	rec      *recorder.Recorder
	consent  *consent.Manager
	clock    clock.Clock
	keys     *names.Normalizer
	logger   zerolog.Logger
	interval time.Duration
	debounce time.Duration
	resume   time.Duration
	anyPage  bool

	// scanMu serialises polls.
	scanMu sync.Mutex

	mu            sync.Mutex
	url           string
	platform      platform.Platform
	consentState  consent.State
	tracking      bool
	session       *storage.Session
	roster        *roster.Roster
	reportedCount int
	strategy      scanner.Strategy

	notify chan struct{}
}

// New creates a tracker. Nothing happens until Run or Poll is called.
func New(src source.Source, scan *scanner.Scanner, rec *recorder.Recorder, cm *consent.Manager, opts Options, logger zerolog.Logger) *Tracker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.ResumeWindow <= 0 {
		opts.ResumeWindow = DefaultResumeWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Tracker{
		src:      src,
		scan:     scan,
		rec:      rec,
		consent:  cm,
		clock:    opts.Clock,
		keys:     opts.Normalizer,
		logger:   logger.With().Str("component", "tracker").Logger(),
		interval: opts.PollInterval,
		debounce: opts.Debounce,
		resume:   opts.ResumeWindow,
		anyPage:  opts.AnyPage,
		notify:   make(chan struct{}, 1),
	}
}

// Notify signals that the page changed. A poll follows once the debounce
// period passes without further notifications.
func (t *Tracker) Notify() {
	select {
	case t.notify <- struct{}{}:
	default:
	}
}

// Run polls on a fixed interval and after debounced change notifications
// until ctx is cancelled, then cleans up.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	debounce := time.NewTimer(t.debounce)
	debounce.Stop()
	defer debounce.Stop()

	t.logger.Info().
		Dur("poll_interval", t.interval).
		Dur("debounce", t.debounce).
		Msg("Tracker started")

	t.pollAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			t.Cleanup()
			t.logger.Info().Msg("Tracker stopped")
			return nil
		case <-ticker.C:
			t.pollAndLog(ctx)
		case <-t.notify:
			debounce.Reset(t.debounce)
		case <-debounce.C:
			t.pollAndLog(ctx)
		}
	}
}

func (t *Tracker) pollAndLog(ctx context.Context) {
	if err := t.Poll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.logger.Warn().Err(err).Msg("Poll failed")
	}
}

// Poll performs one scan of the page. It follows navigation, starts or
// ends sessions as needed and reconciles the roster.
func (t *Tracker) Poll(ctx context.Context) error {
	t.scanMu.Lock()
	defer t.scanMu.Unlock()

	url, err := t.src.Location(ctx)
	switch {
	case errors.Is(err, source.ErrNoPage):
		url = ""
	case err != nil:
		metrics.SnapshotErrors.Inc()
		return fmt.Errorf("read page location: %w", err)
	}

	t.mu.Lock()
	t.followLocked(ctx, url)
	if !t.activeLocked() {
		t.mu.Unlock()
		return nil
	}
	p := t.platform
	t.mu.Unlock()

	snap, err := t.src.Snapshot(ctx)
	if err != nil {
		metrics.SnapshotErrors.Inc()
		return fmt.Errorf("read page snapshot: %w", err)
	}

	res := t.scan.Scan(snap, p)
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Tracking may have been stopped while the page was being read.
	if !t.activeLocked() {
		return nil
	}

	t.reportedCount = res.ReportedCount
	t.strategy = res.Strategy

	if res.Ended {
		t.logger.Info().Str("session_id", t.session.ID).Msg("Left the meeting, ending session")
		t.cleanupLocked()
		return nil
	}

	changes, changed := t.roster.Reconcile(res.Candidates, now)
	if changed {
		t.logChanges(changes)
		t.persistLocked(now)
	}
	t.updateGaugesLocked()
	return nil
}

// followLocked reacts to the page URL. A new URL ends the current session
// and, on a meeting page with consent, begins another.
func (t *Tracker) followLocked(ctx context.Context, url string) {
	if url == t.url {
		return
	}
	if t.url != "" {
		t.logger.Info().Str("from", t.url).Str("to", url).Msg("Page navigation detected")
	}
	if t.session != nil {
		if t.tracking && t.consentState == consent.Granted {
			t.persistLocked(t.clock.Now())
		}
		t.session = nil
		t.roster = nil
	}

	t.url = url
	t.platform = platform.Detect(url)
	t.tracking = false
	t.reportedCount = 0
	t.strategy = scanner.StrategyNone

	if !t.trackableLocked() {
		t.updateGaugesLocked()
		return
	}

	t.consentState = t.consent.Initial(ctx)
	t.logger.Info().
		Str("platform", t.platform.String()).
		Str("consent", t.consentState.String()).
		Msg("Meeting page detected")

	if t.consentState == consent.Granted {
		t.startLocked(ctx)
	}
}

func (t *Tracker) trackableLocked() bool {
	if t.url == "" {
		return false
	}
	return platform.IsMeetingURL(t.url) || t.anyPage
}

func (t *Tracker) activeLocked() bool {
	return t.tracking && t.consentState == consent.Granted && t.session != nil
}

// startLocked begins tracking the current page, continuing the stored
// current session when it belongs to the same URL and is recent.
func (t *Tracker) startLocked(ctx context.Context) {
	now := t.clock.Now()

	if t.session == nil {
		t.roster = roster.New(t.keys)
		if prev := t.resumableLocked(ctx, now); prev != nil {
			skipped := t.roster.Restore(prev.Participants)
			prev.Participants = nil
			t.session = prev
			t.logger.Info().
				Str("session_id", prev.ID).
				Int("participants", t.roster.Len()).
				Int("skipped", skipped).
				Msg("Resumed session")
		} else {
			t.session = &storage.Session{
				ID:        storage.NewSessionID(now),
				Platform:  t.platform,
				URL:       t.url,
				StartTime: now,
			}
			metrics.SessionsStarted.WithLabelValues(t.platform.String()).Inc()
			t.logger.Info().
				Str("session_id", t.session.ID).
				Str("platform", t.platform.String()).
				Msg("Session started")
		}
		if err := t.rec.SetCurrent(ctx, t.session.ID); err != nil {
			t.logger.Warn().Err(err).Msg("Failed to record current session")
		}
	}

	t.tracking = true
	t.persistLocked(now)
	t.updateGaugesLocked()
}

func (t *Tracker) resumableLocked(ctx context.Context, now time.Time) *storage.Session {
	id, err := t.rec.Current(ctx)
	if err != nil {
		return nil
	}
	prev, err := t.rec.Load(ctx, id)
	if err != nil {
		t.logger.Debug().Err(err).Str("session_id", id).Msg("Current session not loadable")
		return nil
	}
	if prev.URL != t.url || now.Sub(prev.LastUpdated) > t.resume {
		return nil
	}
	return prev
}

func (t *Tracker) persistLocked(now time.Time) {
	if t.session == nil {
		return
	}
	snapshot := *t.session
	snapshot.LastUpdated = now
	snapshot.Participants = t.roster.Participants()
	t.rec.Save(snapshot)
}

func (t *Tracker) cleanupLocked() {
	if t.session != nil && t.consentState == consent.Granted {
		t.persistLocked(t.clock.Now())
	}
	if t.tracking {
		t.logger.Info().Msg("Tracking stopped")
	}
	t.tracking = false
	t.updateGaugesLocked()
}

func (t *Tracker) updateGaugesLocked() {
	if t.roster == nil {
		metrics.ParticipantsPresent.Set(0)
		metrics.ParticipantsTotal.Set(0)
		return
	}
	present, total := t.roster.Counts()
	metrics.ParticipantsPresent.Set(float64(present))
	metrics.ParticipantsTotal.Set(float64(total))
}

func (t *Tracker) logChanges(c roster.Changes) {
	for _, name := range c.Joined {
		t.logger.Info().Str("participant", name).Msg("Participant joined")
	}
	for _, name := range c.Rejoined {
		t.logger.Info().Str("participant", name).Msg("Participant rejoined")
	}
	for _, name := range c.Left {
		t.logger.Info().Str("participant", name).Msg("Participant left")
	}
	metrics.RosterTransitions.WithLabelValues("joined").Add(float64(len(c.Joined)))
	metrics.RosterTransitions.WithLabelValues("rejoined").Add(float64(len(c.Rejoined)))
	metrics.RosterTransitions.WithLabelValues("left").Add(float64(len(c.Left)))
}
