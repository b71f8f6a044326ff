package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/goodtune/rollcall/internal/platform"
	"github.com/goodtune/rollcall/internal/roster"
	"github.com/goodtune/rollcall/internal/storage"
)

var start = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func sampleSession() storage.Session {
	left := start.Add(90 * time.Second)
	return storage.Session{
		ID:        "session_1741942800000_ab12cd34ef",
		Platform:  platform.GoogleMeet,
		URL:       "https://meet.google.com/abc-defg-hij",
		StartTime: start,
		Participants: []roster.Participant{
			{Name: "Jane Doe", Key: "jane doe", JoinTime: start, CurrentlyPresent: true, TotalSessions: 1},
			{Name: "John Smith", Key: "john smith", JoinTime: start, LeaveTime: &left, TotalSessions: 2},
			{Name: "", Key: "", JoinTime: start, CurrentlyPresent: true, TotalSessions: 1},
		},
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{3 * time.Second, "3s"},
		{999 * time.Millisecond, "0s"},
		{2*time.Minute + 3*time.Second, "2m 3s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
		{5 * time.Hour, "5h 0m 0s"},
		{-time.Second, "0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	now := start.Add(10 * time.Minute)
	doc := Build(sampleSession(), now)

	info := doc.SessionInfo
	if info.Platform != "Google Meet" {
		t.Errorf("expected display platform name, got %q", info.Platform)
	}
	if info.SessionDuration != (10 * time.Minute).Milliseconds() {
		t.Errorf("unexpected session duration %d", info.SessionDuration)
	}
	if !info.ExportTime.Equal(now) {
		t.Errorf("unexpected export time %v", info.ExportTime)
	}

	if len(doc.Participants) != 2 {
		t.Fatalf("unnamed participants should be skipped, got %d rows", len(doc.Participants))
	}

	jane, john := doc.Participants[0], doc.Participants[1]
	if jane.LeaveTime != StillPresent || jane.Duration != "10m 0s" || !jane.CurrentlyPresent {
		t.Errorf("unexpected row for Jane: %+v", jane)
	}
	if john.LeaveTime != "2025-03-14T09:01:30Z" || john.Duration != "1m 30s" || john.DurationMs != 90000 {
		t.Errorf("unexpected row for John: %+v", john)
	}

	s := doc.Summary
	if s.TotalParticipants != 2 || s.CurrentlyPresent != 1 || s.TotalSessions != 3 {
		t.Errorf("unexpected summary: %+v", s)
	}
	if want := float64(600000+90000) / 2; s.AverageDuration != want {
		t.Errorf("AverageDuration = %v, want %v", s.AverageDuration, want)
	}
}

func TestBuildEmptySession(t *testing.T) {
	doc := Build(storage.Session{ID: "session_1741942800000_x"}, start.Add(time.Minute))
	if doc.Summary.AverageDuration != 0 || doc.Summary.TotalParticipants != 0 {
		t.Errorf("unexpected summary for empty roster: %+v", doc.Summary)
	}
	if doc.SessionInfo.Platform != "Unknown Platform" {
		t.Errorf("unexpected platform %q", doc.SessionInfo.Platform)
	}
	if doc.SessionInfo.SessionDuration <= 0 {
		t.Error("start time should be recovered from the session id")
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Build(sampleSession(), start.Add(time.Minute))); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	for _, key := range []string{"sessionInfo", "summary", "participants"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing top-level key %q", key)
		}
	}
	if !strings.Contains(buf.String(), "\n  \"sessionInfo\"") {
		t.Error("expected indented output")
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	doc := Build(sampleSession(), start.Add(10*time.Minute))
	if err := WriteCSV(&buf, doc, time.UTC); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(records))
	}
	if strings.Join(records[0], "|") != strings.Join(CSVHeader, "|") {
		t.Errorf("unexpected header %v", records[0])
	}

	want := [][]string{
		{"Jane Doe", "2025-03-14 09:00:00", "Still present", "10m 0s", "10", "1", "Yes"},
		{"John Smith", "2025-03-14 09:00:00", "2025-03-14 09:01:30", "1m 30s", "2", "2", "No"},
	}
	for i, row := range want {
		if strings.Join(records[i+1], "|") != strings.Join(row, "|") {
			t.Errorf("row %d = %v, want %v", i+1, records[i+1], row)
		}
	}
}

func TestWriteCSVQuotesNames(t *testing.T) {
	doc := Document{Participants: []Participant{{Name: `Doe, "JD" Jane`, LeaveTime: StillPresent, Duration: "0s", TotalSessions: 1}}}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, doc, time.UTC); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if records[1][0] != `Doe, "JD" Jane` {
		t.Errorf("name not preserved: %q", records[1][0])
	}
}

func TestFilename(t *testing.T) {
	day := time.Date(2025, 3, 14, 23, 0, 0, 0, time.UTC)
	if got := Filename(KindJSON, "google-meet", day); got != "meeting_tracker_google_meet_2025-03-14.json" {
		t.Errorf("unexpected JSON filename %q", got)
	}
	if got := Filename(KindCSV, "zoom", day); got != "meeting_participants_zoom_2025-03-14.csv" {
		t.Errorf("unexpected CSV filename %q", got)
	}
	if got := Filename(KindJSON, "", day); got != "meeting_tracker_unknown_2025-03-14.json" {
		t.Errorf("unexpected fallback filename %q", got)
	}
}
