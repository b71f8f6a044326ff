package platform

import "github.com/goodtune/rollcall/internal/names"

// Profile describes where a platform renders participant names.
type Profile struct {
	// NameSelectors are tried in order; results from all of them are unioned.
	NameSelectors []string
	// TileSelectors locate video tiles for the anonymous head-count fallback.
	TileSelectors []string
	// CounterSelectors locate the platform's own "N participants" badge.
	CounterSelectors []string
	// Filter is the name-quality filter applied to candidates.
	Filter names.Filter
	// DetectsLeave enables the "you left the meeting" check.
	DetectsLeave bool
}

// GenericSelectors match participant-ish attributes on any page.
var GenericSelectors = []string{
	`[class*="participant"]`,
	`[class*="user"]`,
	`[data-testid*="participant"]`,
	`[data-testid*="user"]`,
}

// AriaSelectors locate accessibility labels that may embed a name.
var AriaSelectors = []string{
	`[aria-label*="participant"]:not(button)`,
	`[aria-label*="Participant"]:not(button)`,
	`[aria-describedby*="participant"]`,
	`[title*="participant"]:not(button)`,
	`[title*="Participant"]:not(button)`,
}

var profiles = map[Platform]Profile{
	GoogleMeet: {
		NameSelectors: []string{
			`[data-self-name]`,
			`[data-participant-id] > div > div > span:first-child`,
			`.ZjFb7c > span:first-child`,
			`.uGOf1d [role="button"] > span:first-child`,
			`[jsname="A5il2e"] [role="listitem"] span`,
			`.K4efcd > span:first-child`,
			`[data-requested-participant-id] span`,
			`.DPvwYc span:first-child`,
		},
		TileSelectors: []string{
			`[data-self-name]`,
			`[data-participant-id]`,
			`.oIy2qc`,
			`.N7zPpf`,
		},
		CounterSelectors: []string{
			`[aria-label*="participant"]`,
			`[aria-label*="Participant"]`,
			`[data-tooltip*="participant"]`,
			`.uGOf1d .VfPpkd-rymPhb-ibnC6b`,
			`[jsname="A5il2e"]`,
		},
		Filter:       names.Strict,
		DetectsLeave: true,
	},
	Zoom: {
		NameSelectors: []string{
			`.participants-item__display-name`,
			`.video-avatar__username`,
			`.gallery-video-container .video-avatar__username`,
			`.participants-list__display-name`,
			`[data-testid="participant-name"]`,
			`.participant-name-text`,
			`.ReactVirtualized__Grid__innerScrollContainer .participant-name`,
			`.participant-list-item .display-name`,
		},
		TileSelectors: []string{
			`.gallery-video-container__video-frame`,
			`.speaker-active-container__video-frame`,
		},
		Filter: names.Lenient,
	},
	Teams: {
		NameSelectors: []string{
			`[data-tid="roster-content"] .ui-chat__message__author`,
			`.calling-roster-item span`,
			`.ts-calling-screen [role="button"] span`,
			`[data-testid="participant-name"]`,
			`.fui-Persona__primaryText`,
			`.call-roster-item .display-name`,
			`[data-tid="participant-display-name"]`,
		},
		TileSelectors: []string{
			`[data-cid="calling-participant-stream"]`,
			`[data-tid="video-tile"]`,
		},
		Filter: names.Lenient,
	},
	Webex: {
		NameSelectors: []string{
			`.roster-list .participant-name`,
			`.meeting-roster .participant-item`,
			`.participant-list-item .name`,
		},
		TileSelectors: []string{
			`.video-layout .video-item`,
		},
		Filter: names.Lenient,
	},
	Unknown: {
		NameSelectors: GenericSelectors,
		TileSelectors: []string{`video`},
		Filter:        names.Lenient,
	},
}

// ProfileFor returns the scanning profile of p. Platforms without an entry
// fall back to the Unknown profile.
func ProfileFor(p Platform) Profile {
	if prof, ok := profiles[p]; ok {
		return prof
	}
	return profiles[Unknown]
}

// HasProfile reports whether p has a dedicated entry in the profile table.
func HasProfile(p Platform) bool {
	_, ok := profiles[p]
	return ok
}
