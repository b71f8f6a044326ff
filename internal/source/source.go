// Package source provides page snapshots of the meeting being tracked.
package source

import (
	"context"
	"errors"

	"github.com/goodtune/rollcall/internal/scanner"
)

// ErrNoPage is returned when no suitable page is available to snapshot.
var ErrNoPage = errors.New("source: no meeting page available")

// Source yields the current page location and DOM.
type Source interface {
	// Location returns the URL of the watched page.
	Location(ctx context.Context) (string, error)
	// Snapshot returns the current DOM of the watched page.
	Snapshot(ctx context.Context) (*scanner.Snapshot, error)
}

// Watcher is implemented by sources that can signal DOM changes between
// polls. notify must be cheap and non-blocking.
type Watcher interface {
	Watch(ctx context.Context, notify func()) error
}
