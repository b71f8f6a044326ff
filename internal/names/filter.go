package names

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Name length bounds, in runes.
const (
	MinLength        = 2
	StrictMaxLength  = 50
	LenientMaxLength = 100
)

// Filter is the name-quality check every scraped candidate must pass.
type Filter struct {
	MaxLength int
}

var (
	// Strict is used where the page structure is well known.
	Strict = Filter{MaxLength: StrictMaxLength}
	// Lenient allows the longer display names some platforms render.
	Lenient = Filter{MaxLength: LenientMaxLength}
)

var selfReferences = map[string]struct{}{
	"you": {}, "me": {}, "(you)": {}, "(me)": {}, "yourself": {},
}

// Button labels, panel titles and status words that show up next to names.
var chromeWords = map[string]struct{}{
	"join": {}, "leave": {}, "mute": {}, "unmute": {}, "camera": {}, "share": {},
	"chat": {}, "more": {}, "settings": {}, "help": {}, "close": {}, "open": {},
	"start": {}, "stop": {}, "end": {}, "cancel": {}, "participants": {},
	"participant": {}, "meeting": {}, "call": {}, "video": {}, "audio": {},
	"joined": {}, "left": {}, "reconnecting": {}, "connecting": {}, "loading": {},
	"waiting": {}, "disconnected": {}, "reconnected": {}, "muted": {},
	"unmuted": {}, "zoom": {}, "teams": {}, "webex": {}, "unknown": {}, "guest": {},
}

var chromePhrases = []string{"google meet", "microsoft teams"}

// Accept reports whether name looks like a person's display name.
func (f Filter) Accept(name string) bool {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	maxLength := f.MaxLength
	if maxLength <= 0 {
		maxLength = StrictMaxLength
	}
	if n < MinLength || n > maxLength {
		return false
	}

	lower := strings.ToLower(name)
	if _, ok := selfReferences[lower]; ok {
		return false
	}

	for _, phrase := range chromePhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if _, ok := chromeWords[w]; ok {
			return false
		}
	}

	// Digits and punctuation alone are never a name.
	return strings.IndexFunc(name, unicode.IsLetter) >= 0
}

// IsHighQualityName applies the strict filter.
func IsHighQualityName(name string) bool {
	return Strict.Accept(name)
}
