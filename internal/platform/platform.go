// Package platform identifies the meeting service a page belongs to and
// describes how participant names are laid out on it.
package platform

import (
	"net/url"
	"strings"
)

// Platform is a supported meeting service.
type Platform int

const (
	Unknown Platform = iota
	GoogleMeet
	Zoom
	Teams
	Webex
)

// All lists every platform, Unknown included.
func All() []Platform {
	return []Platform{Unknown, GoogleMeet, Zoom, Teams, Webex}
}

var hostSuffixes = []struct {
	host     string
	platform Platform
}{
	{"meet.google.com", GoogleMeet},
	{"zoom.us", Zoom},
	{"teams.microsoft.com", Teams},
	{"teams.live.com", Teams},
	{"webex.com", Webex},
}

// String returns the stable identifier used in storage and exports.
func (p Platform) String() string {
	switch p {
	case GoogleMeet:
		return "google-meet"
	case Zoom:
		return "zoom"
	case Teams:
		return "teams"
	case Webex:
		return "webex"
	default:
		return "unknown"
	}
}

// DisplayName returns the human readable platform name.
func (p Platform) DisplayName() string {
	switch p {
	case GoogleMeet:
		return "Google Meet"
	case Zoom:
		return "Zoom"
	case Teams:
		return "Microsoft Teams"
	case Webex:
		return "Webex"
	default:
		return "Unknown Platform"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Platform) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unrecognised values
// decode to Unknown rather than failing so old records stay readable.
func (p *Platform) UnmarshalText(text []byte) error {
	*p = Parse(string(text))
	return nil
}

// Parse maps an identifier produced by String back to a Platform.
func Parse(s string) Platform {
	for _, candidate := range All() {
		if strings.EqualFold(candidate.String(), strings.TrimSpace(s)) {
			return candidate
		}
	}
	return Unknown
}

// Detect identifies the platform from a page URL.
func Detect(rawURL string) Platform {
	host := hostname(rawURL)
	if host == "" {
		return Unknown
	}
	for _, h := range hostSuffixes {
		if host == h.host || strings.HasSuffix(host, "."+h.host) {
			return h.platform
		}
	}
	return Unknown
}

// IsMeetingURL reports whether the URL belongs to a supported platform.
func IsMeetingURL(rawURL string) bool {
	return Detect(rawURL) != Unknown
}

func hostname(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
