// Package roster reconciles successive scans of a meeting page into a stable
// list of participants with join and leave times.
package roster

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/goodtune/rollcall/internal/names"
)

// Changes lists the display names affected by one reconciliation pass.
type Changes struct {
	Joined   []string
	Rejoined []string
	Left     []string
}

// Empty reports whether the pass changed nothing.
func (c Changes) Empty() bool {
	return len(c.Joined) == 0 && len(c.Rejoined) == 0 && len(c.Left) == 0
}

// Roster holds the participants of one session. It is not safe for
// concurrent use; the tracker serialises access.
type Roster struct {
	keys         *names.Normalizer
	participants map[string]*Participant
}

// New creates an empty roster. A nil normalizer uses names.Normalize directly.
func New(keys *names.Normalizer) *Roster {
	return &Roster{
		keys:         keys,
		participants: make(map[string]*Participant),
	}
}

// Reconcile applies one batch of scanned names observed at now. Names present
// in the batch are inserted or marked present again; present participants
// missing from the batch are marked absent. The second return value is true
// when any participant was inserted or changed presence.
func (r *Roster) Reconcile(candidates []string, now time.Time) (Changes, bool) {
	var changes Changes

	// Collapse the batch by key; the last spelling wins.
	batch := make(map[string]string, len(candidates))
	order := make([]string, 0, len(candidates))
	for _, name := range candidates {
		key := r.keys.Key(name)
		if key == "" {
			continue
		}
		if _, seen := batch[key]; !seen {
			order = append(order, key)
		}
		batch[key] = name
	}

	for _, key := range order {
		p, ok := r.participants[key]
		switch {
		case !ok:
			r.participants[key] = &Participant{
				Name:             batch[key],
				Key:              key,
				JoinTime:         now,
				CurrentlyPresent: true,
				TotalSessions:    1,
			}
			changes.Joined = append(changes.Joined, batch[key])
		case !p.CurrentlyPresent:
			p.CurrentlyPresent = true
			p.JoinTime = now
			p.LeaveTime = nil
			p.TotalSessions++
			changes.Rejoined = append(changes.Rejoined, p.Name)
		}
	}

	for key, p := range r.participants {
		if _, ok := batch[key]; ok || !p.CurrentlyPresent {
			continue
		}
		left := now
		p.CurrentlyPresent = false
		p.LeaveTime = &left
		changes.Left = append(changes.Left, p.Name)
	}
	sort.Strings(changes.Left)

	return changes, !changes.Empty()
}

// Get returns a copy of the participant stored under the normalized form of
// name.
func (r *Roster) Get(name string) (Participant, bool) {
	p, ok := r.participants[r.keys.Key(name)]
	if !ok {
		return Participant{}, false
	}
	return clone(p), true
}

// Len is the number of participants ever seen.
func (r *Roster) Len() int {
	return len(r.participants)
}

// Present returns the display names of everyone currently present, sorted.
func (r *Roster) Present() []string {
	present := lo.FilterMap(lo.Values(r.participants), func(p *Participant, _ int) (string, bool) {
		return p.Name, p.CurrentlyPresent
	})
	sort.Strings(present)
	return present
}

// Counts returns the number of present participants and the total seen.
func (r *Roster) Counts() (present, total int) {
	present = lo.CountBy(lo.Values(r.participants), func(p *Participant) bool {
		return p.CurrentlyPresent
	})
	return present, len(r.participants)
}

// Participants returns copies of every participant ordered by join time,
// then name.
func (r *Roster) Participants() []Participant {
	out := lo.Map(lo.Values(r.participants), func(p *Participant, _ int) Participant {
		return clone(p)
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinTime.Equal(out[j].JoinTime) {
			return out[i].JoinTime.Before(out[j].JoinTime)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Restore replaces the roster contents with previously stored participants.
// Entries that violate the roster invariants are dropped and counted.
func (r *Roster) Restore(participants []Participant) (skipped int) {
	r.participants = make(map[string]*Participant, len(participants))
	for _, p := range participants {
		if p.Key == "" {
			p.Key = r.keys.Key(p.Name)
		}
		if !p.Valid() {
			skipped++
			continue
		}
		c := clone(&p)
		r.participants[c.Key] = &c
	}
	return skipped
}

func clone(p *Participant) Participant {
	c := *p
	if p.LeaveTime != nil {
		t := *p.LeaveTime
		c.LeaveTime = &t
	}
	return c
}
