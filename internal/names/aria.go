package names

import "regexp"

// Accessibility labels that embed a participant name, most specific first.
var ariaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^([^,]+),\s*participant`),
	regexp.MustCompile(`(?i)participant[:\s]+([^,.]+)`),
	regexp.MustCompile(`(?i)user:\s*([^,.]+)`),
	regexp.MustCompile(`(?i)^([^()]+)\s*\(participant\)`),
	regexp.MustCompile(`(?i)^([^()]+)\s+joined`),
	regexp.MustCompile(`(?i)^([^()]+)\s+is in the meeting`),
	regexp.MustCompile(`^([^()]+)\s+\d+\s*$`),
}

// FromAriaLabel extracts a participant name from an aria-label or title
// attribute. It returns "" when no pattern yields a name that passes the
// strict filter.
func FromAriaLabel(label string) string {
	if label == "" {
		return ""
	}
	for _, pattern := range ariaPatterns {
		m := pattern.FindStringSubmatch(label)
		if len(m) < 2 {
			continue
		}
		name := Clean(m[1])
		if IsHighQualityName(name) {
			return name
		}
	}
	return ""
}
