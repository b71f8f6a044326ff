package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/clock"
	"github.com/goodtune/rollcall/internal/export"
	"github.com/goodtune/rollcall/internal/platform"
	"github.com/goodtune/rollcall/internal/storage"
	"github.com/goodtune/rollcall/internal/storage/memory"
	"github.com/goodtune/rollcall/internal/storage/storagetest"
	"github.com/goodtune/rollcall/internal/tracker"
)

type fakeController struct {
	status     tracker.Status
	session    *storage.Session
	consent    *bool
	remember   bool
	resets     int
	stops      int
	enableErr  error
	consentErr error
}

func (f *fakeController) Status() tracker.Status { return f.status }

func (f *fakeController) Export(now time.Time) (export.Document, bool) {
	if f.session == nil {
		return export.Document{}, false
	}
	return export.Build(*f.session, now), true
}

func (f *fakeController) SetConsent(_ context.Context, granted, remember bool) error {
	f.consent = &granted
	f.remember = remember
	return f.consentErr
}

func (f *fakeController) ResetConsent(context.Context) error {
	f.resets++
	return nil
}

func (f *fakeController) EnableTracking(context.Context) error {
	if f.enableErr != nil {
		return f.enableErr
	}
	f.status.IsTracking = true
	return nil
}

func (f *fakeController) StopTracking() {
	f.stops++
	f.status.IsTracking = false
}

var now = storagetest.Base.Add(time.Hour)

func newTestServer(t *testing.T) (*Server, *fakeController, *memory.Store) {
	t.Helper()
	ctrl := &fakeController{status: tracker.Status{Platform: platform.GoogleMeet, IsTracking: true, HasConsent: true}}
	store := memory.New()
	srv := NewServer(Config{Location: time.UTC, Clock: clock.NewManual(now)}, ctrl, store.Sessions(), zerolog.Nop())
	return srv, ctrl, store
}

func post(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestMessageActions(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	h := srv.Handler()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{"ping", `{"action":"ping"}`, http.StatusOK, `"pong":true`},
		{"status", `{"action":"getTrackingStatus"}`, http.StatusOK, `"isTracking":true`},
		{"data without session", `{"action":"getData"}`, http.StatusOK, `null`},
		{"set consent", `{"action":"setConsent","consent":true,"remember":true}`, http.StatusOK, `"success":true`},
		{"set consent missing", `{"action":"setConsent"}`, http.StatusBadRequest, `consent is required`},
		{"reset consent", `{"action":"resetConsent"}`, http.StatusOK, `"success":true`},
		{"stop", `{"action":"stopTracking"}`, http.StatusOK, `"success":true`},
		{"enable", `{"action":"enableTracking"}`, http.StatusOK, `"success":true`},
		{"unknown", `{"action":"selfDestruct"}`, http.StatusBadRequest, `{"success":false,"error":"Unknown action"}`},
		{"missing action", `{}`, http.StatusBadRequest, `"success":false`},
		{"bad json", `{"action":`, http.StatusBadRequest, `Invalid request body`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, h, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d (%s)", tt.wantStatus, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("expected body to contain %s, got %s", tt.wantBody, w.Body.String())
			}
		})
	}

	if ctrl.consent == nil || !*ctrl.consent || !ctrl.remember {
		t.Errorf("consent not forwarded: %v remember=%v", ctrl.consent, ctrl.remember)
	}
	if ctrl.resets != 1 || ctrl.stops != 1 {
		t.Errorf("expected one reset and one stop, got %d and %d", ctrl.resets, ctrl.stops)
	}
}

func TestPingReportsPlatform(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var resp PingResponse
	decode(t, post(t, srv.Handler(), `{"action":"ping"}`), &resp)
	if !resp.Pong || !resp.IsReady || resp.Platform != "google-meet" {
		t.Errorf("unexpected ping response %+v", resp)
	}
}

func TestGetDataReturnsExport(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	s := storagetest.SampleSession(storagetest.Base)
	ctrl.session = &s

	var doc export.Document
	decode(t, post(t, srv.Handler(), `{"action":"getData"}`), &doc)
	if doc.SessionInfo.SessionID != s.ID || doc.Summary.TotalParticipants != len(s.Participants) {
		t.Errorf("unexpected export %+v", doc)
	}
}

func TestEnableTrackingConflict(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	ctrl.enableErr = errors.New("no meeting page to track")

	w := post(t, srv.Handler(), `{"action":"enableTracking"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var res result
	decode(t, w, &res)
	if res.Success || res.Error != "no meeting page to track" {
		t.Errorf("unexpected response %+v", res)
	}
}

func TestSessionRoutes(t *testing.T) {
	srv, _, store := newTestServer(t)
	h := srv.Handler()
	ctx := context.Background()

	older := storagetest.SampleSession(storagetest.Base)
	newer := storagetest.SampleSession(storagetest.Base.Add(time.Hour))
	for _, s := range []storage.Session{older, newer} {
		if err := store.Sessions().Save(ctx, s); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	var list struct {
		Sessions []SessionSummary `json:"sessions"`
		Count    int              `json:"count"`
	}
	decode(t, get(t, h, http.MethodGet, "/api/sessions"), &list)
	if list.Count != 2 || list.Sessions[0].ID != newer.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if list.Sessions[0].Participants != len(newer.Participants) {
		t.Errorf("participant count = %d", list.Sessions[0].Participants)
	}

	w := get(t, h, http.MethodGet, "/api/sessions/"+older.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("show: status %d", w.Code)
	}
	var got storage.Session
	decode(t, w, &got)
	if got.ID != older.ID {
		t.Errorf("show returned %s", got.ID)
	}

	if w := get(t, h, http.MethodGet, "/api/sessions/session_1_missing"); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing session, got %d", w.Code)
	}

	w = get(t, h, http.MethodDelete, "/api/sessions")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"deleted":2`) {
		t.Errorf("clear: %d %s", w.Code, w.Body.String())
	}
	if sessions, _ := store.Sessions().List(ctx); len(sessions) != 0 {
		t.Errorf("expected no sessions after clear, got %d", len(sessions))
	}
}

func TestExportRoutes(t *testing.T) {
	srv, _, store := newTestServer(t)
	h := srv.Handler()

	s := storagetest.SampleSession(storagetest.Base)
	if err := store.Sessions().Save(context.Background(), s); err != nil {
		t.Fatalf("save: %v", err)
	}

	w := get(t, h, http.MethodGet, "/api/sessions/"+s.ID+"/export.json")
	if w.Code != http.StatusOK {
		t.Fatalf("json export: status %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "meeting_tracker_google_meet_2025-03-14.json") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	var doc export.Document
	decode(t, w, &doc)
	if doc.SessionInfo.SessionID != s.ID {
		t.Errorf("export for wrong session: %s", doc.SessionInfo.SessionID)
	}

	w = get(t, h, http.MethodGet, "/api/sessions/"+s.ID+"/export.csv")
	if w.Code != http.StatusOK {
		t.Fatalf("csv export: status %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "meeting_participants_google_meet_2025-03-14.csv") {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	records, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 1+len(s.Participants) {
		t.Errorf("expected header plus %d rows, got %d", len(s.Participants), len(records))
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	w := get(t, srv.Handler(), http.MethodGet, "/health")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestRequestID(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()

	w := get(t, h, http.MethodGet, "/health")
	if _, err := uuid.Parse(w.Header().Get("X-Request-ID")); err != nil {
		t.Errorf("expected generated uuid request id, got %q", w.Header().Get("X-Request-ID"))
	}

	id := uuid.New().String()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", id)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != id {
		t.Errorf("expected client request id %s to be kept, got %s", id, got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	w := get(t, h, http.MethodGet, "/")
	if w.Code != http.StatusInternalServerError || !strings.Contains(w.Body.String(), `"success":false`) {
		t.Errorf("unexpected recovery response %d %s", w.Code, w.Body.String())
	}
}
