package roster

import "time"

// Participant is one attendee of a session, keyed by their normalized name.
type Participant struct {
	Name             string     `json:"name"`
	Key              string     `json:"normalizedName"`
	JoinTime         time.Time  `json:"joinTime"`
	LeaveTime        *time.Time `json:"leaveTime"`
	CurrentlyPresent bool       `json:"currentlyPresent"`
	TotalSessions    int        `json:"totalSessions"`
}

// Duration is the time since the most recent join, up to the leave time if
// the participant is gone or now if they are still present.
func (p Participant) Duration(now time.Time) time.Duration {
	end := now
	if !p.CurrentlyPresent && p.LeaveTime != nil {
		end = *p.LeaveTime
	}
	if d := end.Sub(p.JoinTime); d > 0 {
		return d
	}
	return 0
}

// Valid reports whether the participant satisfies the roster invariants.
func (p Participant) Valid() bool {
	if p.Key == "" || p.TotalSessions < 1 {
		return false
	}
	return p.CurrentlyPresent == (p.LeaveTime == nil)
}
