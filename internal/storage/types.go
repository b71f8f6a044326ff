package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goodtune/rollcall/internal/platform"
	"github.com/goodtune/rollcall/internal/roster"
)

const sessionIDPrefix = "session_"

// Session is one tracked meeting and its roster.
type Session struct {
	ID           string               `json:"sessionId"`
	Platform     platform.Platform    `json:"platform"`
	URL          string               `json:"url"`
	StartTime    time.Time            `json:"startTime"`
	LastUpdated  time.Time            `json:"lastUpdated"`
	Participants []roster.Participant `json:"participants"`
}

// Started returns the session start time, falling back to the timestamp
// embedded in the session id.
func (s Session) Started() time.Time {
	if !s.StartTime.IsZero() {
		return s.StartTime
	}
	t, _ := StartTimeFromID(s.ID)
	return t
}

// NewSessionID returns an id of the form session_<unix-millis>_<random>.
func NewSessionID(now time.Time) string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s%d_%d", sessionIDPrefix, now.UnixMilli(), now.Nanosecond())
	}
	return fmt.Sprintf("%s%d_%s", sessionIDPrefix, now.UnixMilli(), hex.EncodeToString(buf))
}

// StartTimeFromID recovers the start time embedded by NewSessionID.
func StartTimeFromID(id string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(id, sessionIDPrefix)
	if !ok {
		return time.Time{}, false
	}
	millis, _, _ := strings.Cut(rest, "_")
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// DecodeSession parses a stored session record. Records whose id does not
// match key, or which carry neither a start time nor a parseable id, are
// rejected as malformed.
func DecodeSession(key string, data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", key, err)
	}
	if s.ID == "" {
		s.ID = key
	}
	if s.ID != key {
		return nil, fmt.Errorf("decode session %s: id mismatch %q", key, s.ID)
	}
	if s.Started().IsZero() {
		return nil, fmt.Errorf("decode session %s: missing start time", key)
	}
	return &s, nil
}

// SortNewestFirst orders sessions by start time, newest first.
func SortNewestFirst(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Started().After(sessions[j].Started())
	})
}

// Consent is the remembered answer to the tracking prompt.
type Consent string

const (
	ConsentAlways Consent = "always"
	ConsentNever  Consent = "never"
	ConsentAsk    Consent = "ask"
)

// ParseConsent validates a consent string.
func ParseConsent(s string) (Consent, error) {
	switch c := Consent(strings.ToLower(strings.TrimSpace(s))); c {
	case ConsentAlways, ConsentNever, ConsentAsk:
		return c, nil
	default:
		return "", fmt.Errorf("invalid consent: %s (must be always, never or ask)", s)
	}
}

// Preference is a remembered consent decision and when it was made.
type Preference struct {
	Consent Consent   `json:"tracking_preference"`
	SetAt   time.Time `json:"preference_timestamp"`
}

// Fresh reports whether the preference was recorded within maxAge of now.
func (p Preference) Fresh(now time.Time, maxAge time.Duration) bool {
	return !p.SetAt.IsZero() && now.Sub(p.SetAt) < maxAge
}
