// Package export renders a stored session as the JSON document and CSV
// sheet handed to users.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/goodtune/rollcall/internal/roster"
	"github.com/goodtune/rollcall/internal/storage"
)

// StillPresent replaces the leave time of anyone who has not left.
const StillPresent = "Still present"

// CSVTimeLayout is the timestamp layout used in CSV cells.
const CSVTimeLayout = "2006-01-02 15:04:05"

// Document is the exported form of a session.
type Document struct {
	SessionInfo  SessionInfo   `json:"sessionInfo"`
	Summary      Summary       `json:"summary"`
	Participants []Participant `json:"participants"`
}

// SessionInfo describes the exported session.
type SessionInfo struct {
	SessionID       string    `json:"sessionId"`
	Platform        string    `json:"platform"`
	URL             string    `json:"url"`
	StartTime       time.Time `json:"startTime"`
	ExportTime      time.Time `json:"exportTime"`
	SessionDuration int64     `json:"sessionDuration"`
}

// Summary aggregates the roster. Durations are in milliseconds.
type Summary struct {
	TotalParticipants int     `json:"totalParticipants"`
	CurrentlyPresent  int     `json:"currentlyPresent"`
	TotalSessions     int     `json:"totalSessions"`
	AverageDuration   float64 `json:"averageDuration"`
}

// Participant is one exported roster row.
type Participant struct {
	Name             string    `json:"name"`
	JoinTime         time.Time `json:"joinTime"`
	LeaveTime        string    `json:"leaveTime"`
	Duration         string    `json:"duration"`
	DurationMs       int64     `json:"durationMs"`
	TotalSessions    int       `json:"totalSessions"`
	CurrentlyPresent bool      `json:"currentlyPresent"`
}

// Build assembles the export document for session as of now.
func Build(session storage.Session, now time.Time) Document {
	rows := lo.FilterMap(session.Participants, func(p roster.Participant, _ int) (Participant, bool) {
		if p.Name == "" {
			return Participant{}, false
		}
		d := p.Duration(now)
		leave := StillPresent
		if !p.CurrentlyPresent && p.LeaveTime != nil {
			leave = p.LeaveTime.UTC().Format(time.RFC3339Nano)
		}
		sessions := p.TotalSessions
		if sessions < 1 {
			sessions = 1
		}
		return Participant{
			Name:             p.Name,
			JoinTime:         p.JoinTime,
			LeaveTime:        leave,
			Duration:         FormatDuration(d),
			DurationMs:       d.Milliseconds(),
			TotalSessions:    sessions,
			CurrentlyPresent: p.CurrentlyPresent,
		}, true
	})

	summary := Summary{
		TotalParticipants: len(rows),
		CurrentlyPresent:  lo.CountBy(rows, func(p Participant) bool { return p.CurrentlyPresent }),
		TotalSessions:     lo.SumBy(rows, func(p Participant) int { return p.TotalSessions }),
	}
	if len(rows) > 0 {
		total := lo.SumBy(rows, func(p Participant) int64 { return p.DurationMs })
		summary.AverageDuration = float64(total) / float64(len(rows))
	}

	var sessionDuration int64
	if start := session.Started(); !start.IsZero() {
		sessionDuration = max(now.Sub(start).Milliseconds(), 0)
	}

	return Document{
		SessionInfo: SessionInfo{
			SessionID:       session.ID,
			Platform:        session.Platform.DisplayName(),
			URL:             session.URL,
			StartTime:       session.Started(),
			ExportTime:      now,
			SessionDuration: sessionDuration,
		},
		Summary:      summary,
		Participants: rows,
	}
}

// WriteJSON writes doc as indented JSON.
func WriteJSON(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return nil
}

// CSVHeader lists the CSV columns in order.
var CSVHeader = []string{
	"Name", "Join Time", "Leave Time", "Duration", "Duration (minutes)", "Total Sessions", "Currently Present",
}

// WriteCSV writes one row per participant, rendering times in loc.
func WriteCSV(w io.Writer, doc Document, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, p := range doc.Participants {
		join := ""
		if !p.JoinTime.IsZero() {
			join = p.JoinTime.In(loc).Format(CSVTimeLayout)
		}
		leave := StillPresent
		if p.LeaveTime != StillPresent {
			if t, err := time.Parse(time.RFC3339Nano, p.LeaveTime); err == nil {
				leave = t.In(loc).Format(CSVTimeLayout)
			}
		}
		present := "No"
		if p.CurrentlyPresent {
			present = "Yes"
		}
		row := []string{
			p.Name,
			join,
			leave,
			p.Duration,
			strconv.FormatInt(roundMinutes(p.DurationMs), 10),
			strconv.Itoa(p.TotalSessions),
			present,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// FormatDuration renders d as "1h 2m 3s", "2m 3s" or "3s". Negative
// durations render as "0s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

// Kind selects the export file type.
type Kind string

const (
	KindJSON Kind = "json"
	KindCSV  Kind = "csv"
)

// Filename returns the download name for an export of the given kind.
func Filename(kind Kind, platformName string, date time.Time) string {
	if platformName == "" {
		platformName = "unknown"
	}
	p := strings.Replace(platformName, "-", "_", 1)
	day := date.Format("2006-01-02")
	if kind == KindCSV {
		return fmt.Sprintf("meeting_participants_%s_%s.csv", p, day)
	}
	return fmt.Sprintf("meeting_tracker_%s_%s.json", p, day)
}

// roundMinutes rounds to the nearest minute, halves up.
func roundMinutes(ms int64) int64 {
	return (ms + 30000) / 60000
}
