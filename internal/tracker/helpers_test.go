package tracker

import (
	"time"

	"github.com/goodtune/rollcall/internal/names"
	"github.com/goodtune/rollcall/internal/roster"
)

func rosterEntry(name string, joined time.Time, left *time.Time, sessions int) roster.Participant {
	return roster.Participant{
		Name:             name,
		Key:              names.Normalize(name),
		JoinTime:         joined,
		LeaveTime:        left,
		CurrentlyPresent: left == nil,
		TotalSessions:    sessions,
	}
}
