// Package names turns raw strings scraped from meeting pages into participant
// names and comparison keys.
package names

import (
	"fmt"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultCacheSize is the number of raw names a Normalizer remembers.
const DefaultCacheSize = 1024

// Normalize returns the comparison key for a raw name: lowercased, diacritics
// folded, every character that is not a letter, digit or underscore removed,
// and runs of whitespace collapsed to a single space. It never fails; an empty
// or symbol-only input yields an empty key.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	// é → e so that "José" and "Jose" share a key
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, raw)
	if err != nil {
		folded = raw
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSpace := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			pendingSpace = true
		}
	}
	return b.String()
}

// Normalizer memoizes Normalize. The same handful of names is seen on every
// poll, so the cache hit rate is close to 100% during a meeting.
type Normalizer struct {
	cache *lru.Cache[string, string]
}

// NewNormalizer creates a Normalizer holding up to size entries.
func NewNormalizer(size int) (*Normalizer, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create normalizer cache: %w", err)
	}
	return &Normalizer{cache: cache}, nil
}

// Key returns Normalize(raw), served from the cache when possible.
func (n *Normalizer) Key(raw string) string {
	if n == nil || n.cache == nil {
		return Normalize(raw)
	}
	if key, ok := n.cache.Get(raw); ok {
		return key
	}
	key := Normalize(raw)
	n.cache.Add(raw, key)
	return key
}

// Len reports how many raw names are cached.
func (n *Normalizer) Len() int {
	if n == nil || n.cache == nil {
		return 0
	}
	return n.cache.Len()
}
