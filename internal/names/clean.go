package names

import (
	"regexp"
	"strings"
)

var (
	roleSuffix   = regexp.MustCompile(`(?i)\s*\((host|co-host|moderator|organizer|organiser|you|me|presenter|guest)\)$`)
	statusSuffix = regexp.MustCompile(`(?i)\s*(muted|unmuted|camera on|camera off)$`)
	afterBullet  = regexp.MustCompile(`\s*•.*$`)

	presenceEmoji = strings.NewReplacer("🎤", "", "🔇", "", "📹", "", "🚫", "", "🔴", "")
)

// Clean strips role annotations, presence emoji and status words from a raw
// scraped label and collapses its whitespace. The result may still be junk;
// pass it through a Filter before using it as a name.
func Clean(raw string) string {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return ""
	}

	name = afterBullet.ReplaceAllString(name, "")
	name = presenceEmoji.Replace(name)

	// "Jane (host) (you)" carries more than one annotation
	for {
		trimmed := strings.TrimSpace(statusSuffix.ReplaceAllString(roleSuffix.ReplaceAllString(name, ""), ""))
		if trimmed == name {
			break
		}
		name = trimmed
	}

	return strings.Join(strings.Fields(name), " ")
}
