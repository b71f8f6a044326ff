package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/clock"
	"github.com/goodtune/rollcall/internal/consent"
	"github.com/goodtune/rollcall/internal/recorder"
	"github.com/goodtune/rollcall/internal/scanner"
	"github.com/goodtune/rollcall/internal/source"
	"github.com/goodtune/rollcall/internal/storage"
	"github.com/goodtune/rollcall/internal/storage/memory"
)

const meetURL = "https://meet.google.com/abc-defg-hij"

var t0 = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	url       string
	html      string
	err       error
	snapshots int
}

func (f *fakeSource) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, f.err
}

func (f *fakeSource) Snapshot(context.Context) (*scanner.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots++
	return scanner.ParseString(f.html, f.url)
}

func (f *fakeSource) show(url string, participants ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	f.html = meetPage(participants...)
}

func meetPage(participants ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range participants {
		b.WriteString(`<div class="ZjFb7c"><span>` + p + `</span></div>`)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type harness struct {
	src     *fakeSource
	store   *memory.Store
	rec     *recorder.Recorder
	clock   *clock.Manual
	tracker *Tracker
}

func newHarness(t *testing.T, fallback storage.Consent, opts Options) *harness {
	t.Helper()
	h := &harness{
		src:   &fakeSource{},
		store: memory.New(),
		clock: clock.NewManual(t0),
	}
	h.rec = recorder.New(h.store.Sessions(), nil, zerolog.Nop())
	t.Cleanup(h.rec.Close)

	cm := consent.NewManager(h.store.Preferences(), fallback, 0, h.clock, zerolog.Nop())
	opts.Clock = h.clock
	h.tracker = New(h.src, scanner.New(zerolog.Nop()), h.rec, cm, opts, zerolog.Nop())
	return h
}

func (h *harness) poll(t *testing.T) {
	t.Helper()
	if err := h.tracker.Poll(context.Background()); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
}

func (h *harness) stored(t *testing.T, id string) *storage.Session {
	t.Helper()
	h.rec.Flush()
	s, err := h.store.Sessions().Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load stored session %s: %v", id, err)
	}
	return s
}

func TestPollScenario(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})

	h.src.show(meetURL, "Jane Doe", "John Smith")
	h.poll(t)

	st := h.tracker.Status()
	if !st.IsTracking || !st.HasConsent || st.SessionID == "" {
		t.Fatalf("expected tracking with consent, got %+v", st)
	}
	if st.Present != 2 || st.Total != 2 {
		t.Errorf("expected 2/2 after first poll, got %d/%d", st.Present, st.Total)
	}

	h.clock.Advance(5 * time.Second)
	h.src.show(meetURL, "Jane Doe")
	h.poll(t)

	h.clock.Advance(5 * time.Second)
	h.src.show(meetURL, "Jane Doe", "John Smith")
	h.poll(t)

	session, ok := h.tracker.Session()
	if !ok {
		t.Fatal("expected a session")
	}
	var john bool
	for _, p := range session.Participants {
		if p.Name != "John Smith" {
			continue
		}
		john = true
		if p.TotalSessions != 2 || !p.CurrentlyPresent || p.LeaveTime != nil {
			t.Errorf("unexpected John after rejoin: %+v", p)
		}
		if !p.JoinTime.Equal(t0.Add(10 * time.Second)) {
			t.Errorf("rejoin should reset join time, got %v", p.JoinTime)
		}
	}
	if !john {
		t.Fatal("John missing from roster")
	}

	stored := h.stored(t, st.SessionID)
	if len(stored.Participants) != 2 {
		t.Errorf("expected persisted roster of 2, got %d", len(stored.Participants))
	}
	current, err := h.store.Sessions().Current(context.Background())
	if err != nil || current != st.SessionID {
		t.Errorf("expected current pointer %s, got %q (%v)", st.SessionID, current, err)
	}
}

func TestConsentPrompt(t *testing.T) {
	h := newHarness(t, storage.ConsentAsk, Options{})
	h.src.show(meetURL, "Jane Doe")
	h.poll(t)

	st := h.tracker.Status()
	if st.IsTracking || st.HasConsent || st.Consent != "pending" {
		t.Fatalf("expected to wait for consent, got %+v", st)
	}
	if h.src.snapshots != 0 {
		t.Errorf("page read without consent")
	}

	if err := h.tracker.SetConsent(context.Background(), true, true); err != nil {
		t.Fatalf("SetConsent: %v", err)
	}
	h.poll(t)

	st = h.tracker.Status()
	if !st.IsTracking || st.Present != 1 {
		t.Errorf("expected tracking after consent, got %+v", st)
	}

	pref, err := h.store.Preferences().Get(context.Background())
	if err != nil || pref.Consent != storage.ConsentAlways {
		t.Errorf("expected remembered preference, got %+v (%v)", pref, err)
	}
}

func TestStoredRefusal(t *testing.T) {
	h := newHarness(t, storage.ConsentAsk, Options{})
	if err := h.store.Preferences().Set(context.Background(), storage.Preference{Consent: storage.ConsentNever, SetAt: t0}); err != nil {
		t.Fatalf("set preference: %v", err)
	}

	h.src.show(meetURL, "Jane Doe")
	h.poll(t)

	if st := h.tracker.Status(); st.IsTracking || st.Consent != "denied" {
		t.Errorf("expected refusal to be honoured, got %+v", st)
	}
	if h.src.snapshots != 0 {
		t.Errorf("page read despite refusal")
	}
}

func TestDecliningConsentStopsTracking(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	h.src.show(meetURL, "Jane Doe")
	h.poll(t)

	if err := h.tracker.SetConsent(context.Background(), false, false); err != nil {
		t.Fatalf("SetConsent: %v", err)
	}
	if st := h.tracker.Status(); st.IsTracking || st.HasConsent {
		t.Errorf("expected tracking off, got %+v", st)
	}
	if _, err := h.store.Preferences().Get(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("preference stored without remember: %v", err)
	}
}

func TestMeetingEnded(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	h.src.show(meetURL, "Jane Doe")
	h.poll(t)
	id := h.tracker.Status().SessionID

	h.src.mu.Lock()
	h.src.html = `<body><h1>You've left the meeting</h1><button aria-label="Rejoin">Rejoin</button></body>`
	h.src.mu.Unlock()
	h.poll(t)

	st := h.tracker.Status()
	if st.IsTracking {
		t.Error("expected tracking to stop when the meeting ends")
	}
	if st.Present != 1 {
		t.Errorf("roster should be left as last seen, got %d present", st.Present)
	}
	if len(h.stored(t, id).Participants) != 1 {
		t.Error("final snapshot not persisted")
	}
}

func TestNavigationStartsNewSession(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	h.src.show(meetURL, "Jane Doe")
	h.poll(t)
	first := h.tracker.Status().SessionID

	h.clock.Advance(time.Minute)
	h.src.show("https://meet.google.com/xyz-abcd-efg", "John Smith")
	h.poll(t)
	second := h.tracker.Status().SessionID

	if second == "" || second == first {
		t.Fatalf("expected a new session, got %q after %q", second, first)
	}
	if s := h.stored(t, first); len(s.Participants) != 1 || s.Participants[0].Name != "Jane Doe" {
		t.Errorf("previous session not finalised: %+v", s.Participants)
	}

	h.src.show("https://example.com/", "Jane Doe")
	h.poll(t)
	if st := h.tracker.Status(); st.IsTracking || st.SessionID != "" {
		t.Errorf("expected no tracking off a meeting page, got %+v", st)
	}
}

func TestAnyPage(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{AnyPage: true})
	h.src.mu.Lock()
	h.src.url = "file:///tmp/page.html"
	h.src.html = `<body><div class="user-tile">Jane Doe</div></body>`
	h.src.mu.Unlock()
	h.poll(t)

	if st := h.tracker.Status(); !st.IsTracking || st.Present != 1 {
		t.Errorf("expected generic tracking, got %+v", st)
	}
}

func TestStopAndEnableTracking(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	h.src.show(meetURL, "Jane Doe")
	h.poll(t)
	id := h.tracker.Status().SessionID

	h.tracker.StopTracking()
	h.src.show(meetURL, "Jane Doe", "John Smith")
	h.poll(t)
	if st := h.tracker.Status(); st.IsTracking || st.Total != 1 {
		t.Fatalf("poll should be a no-op after stop, got %+v", st)
	}

	if err := h.tracker.EnableTracking(context.Background()); err != nil {
		t.Fatalf("EnableTracking: %v", err)
	}
	h.poll(t)
	st := h.tracker.Status()
	if !st.IsTracking || st.SessionID != id || st.Total != 2 {
		t.Errorf("expected the same session to continue, got %+v", st)
	}
}

func TestEnableTrackingWithoutPage(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	if err := h.tracker.EnableTracking(context.Background()); err == nil {
		t.Error("expected error with no meeting page")
	}
}

func TestResetConsent(t *testing.T) {
	h := newHarness(t, storage.ConsentAsk, Options{})
	h.src.show(meetURL, "Jane Doe")
	h.poll(t)
	if err := h.tracker.SetConsent(context.Background(), true, true); err != nil {
		t.Fatalf("SetConsent: %v", err)
	}

	if err := h.tracker.ResetConsent(context.Background()); err != nil {
		t.Fatalf("ResetConsent: %v", err)
	}
	st := h.tracker.Status()
	if st.IsTracking || st.Consent != "pending" {
		t.Errorf("expected pending consent after reset, got %+v", st)
	}
	if _, err := h.store.Preferences().Get(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected preference cleared, got %v", err)
	}
}

func TestResumeRecentSession(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	ctx := context.Background()

	left := t0.Add(-time.Minute)
	prev := storage.Session{
		ID:          storage.NewSessionID(t0.Add(-time.Hour)),
		URL:         meetURL,
		StartTime:   t0.Add(-time.Hour),
		LastUpdated: t0.Add(-time.Minute),
	}
	prev.Participants = append(prev.Participants,
		rosterEntry("John Smith", t0.Add(-time.Hour), &left, 1))
	if err := h.store.Sessions().Save(ctx, prev); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := h.store.Sessions().SetCurrent(ctx, prev.ID); err != nil {
		t.Fatalf("set current: %v", err)
	}

	h.src.show(meetURL, "John Smith")
	h.poll(t)

	st := h.tracker.Status()
	if st.SessionID != prev.ID {
		t.Fatalf("expected to resume %s, got %s", prev.ID, st.SessionID)
	}
	s, _ := h.tracker.Session()
	if len(s.Participants) != 1 || s.Participants[0].TotalSessions != 2 {
		t.Errorf("expected John to rejoin the resumed roster, got %+v", s.Participants)
	}
}

func TestStaleSessionNotResumed(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	ctx := context.Background()

	prev := storage.Session{
		ID:          storage.NewSessionID(t0.Add(-3 * time.Hour)),
		URL:         meetURL,
		StartTime:   t0.Add(-3 * time.Hour),
		LastUpdated: t0.Add(-2 * time.Hour),
	}
	if err := h.store.Sessions().Save(ctx, prev); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := h.store.Sessions().SetCurrent(ctx, prev.ID); err != nil {
		t.Fatalf("set current: %v", err)
	}

	h.src.show(meetURL, "Jane Doe")
	h.poll(t)
	if st := h.tracker.Status(); st.SessionID == prev.ID {
		t.Error("stale session should not be resumed")
	}
}

func TestPollSourceError(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	h.src.err = errors.New("browser gone")
	if err := h.tracker.Poll(context.Background()); err == nil {
		t.Error("expected poll to report the source error")
	}
}

func TestExport(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	if _, ok := h.tracker.Export(t0); ok {
		t.Error("expected no export without a session")
	}

	h.src.show(meetURL, "Jane Doe", "John Smith")
	h.poll(t)

	doc, ok := h.tracker.Export(t0.Add(time.Minute))
	if !ok {
		t.Fatal("expected export document")
	}
	if doc.Summary.TotalParticipants != 2 || doc.SessionInfo.Platform != "Google Meet" {
		t.Errorf("unexpected export: %+v", doc)
	}
}

func TestRunDebouncesNotifications(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{PollInterval: time.Hour, Debounce: 10 * time.Millisecond})
	h.src.show(meetURL, "Jane Doe")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.tracker.Run(ctx) }()

	waitFor(t, func() bool { return h.tracker.Status().Present == 1 })

	h.src.show(meetURL, "Jane Doe", "John Smith", "Ana Lima")
	for i := 0; i < 5; i++ {
		h.tracker.Notify()
	}
	waitFor(t, func() bool { return h.tracker.Status().Present == 3 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if h.tracker.Status().IsTracking {
		t.Error("expected cleanup on shutdown")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPageClosedEndsSession(t *testing.T) {
	h := newHarness(t, storage.ConsentAlways, Options{})
	h.src.show(meetURL, "Jane Doe")
	h.poll(t)
	id := h.tracker.Status().SessionID

	h.src.mu.Lock()
	h.src.err = source.ErrNoPage
	h.src.mu.Unlock()
	h.poll(t)

	if st := h.tracker.Status(); st.IsTracking || st.SessionID != "" {
		t.Errorf("expected no session once the page is gone, got %+v", st)
	}
	if len(h.stored(t, id).Participants) != 1 {
		t.Error("closed session not persisted")
	}
}
