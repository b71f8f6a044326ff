package redis

import (
	"fmt"
	"time"

	"github.com/goodtune/rollcall/internal/storage"
)

// keys builds the Redis key layout under one prefix.
type keys struct {
	prefix string
}

func newKeys(prefix string) keys {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return keys{prefix: prefix}
}

// sessionPrefix is prepended to a session id to form its record key.
func (k keys) sessionPrefix() string { return k.prefix + ":session:" }

func (k keys) session(id string) string { return k.sessionPrefix() + id }

// index is a sorted set of session ids scored by start time in unix millis.
func (k keys) index() string { return k.prefix + ":sessions" }

func (k keys) current() string { return k.prefix + ":current" }

func (k keys) preference() string { return k.prefix + ":preference" }

// parsePreference converts a Redis hash to Preference
func parsePreference(data map[string]string) (*storage.Preference, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	consent, err := storage.ParseConsent(data["consent"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse consent: %w", err)
	}

	setAt, err := time.Parse(time.RFC3339Nano, data["set_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse set_at: %w", err)
	}

	return &storage.Preference{
		Consent: consent,
		SetAt:   setAt,
	}, nil
}
