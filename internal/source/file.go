package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/scanner"
)

// File serves snapshots from an HTML file on disk, such as a saved meeting
// page or one rewritten by a test harness.
type File struct {
	path   string
	url    string
	logger zerolog.Logger
}

// NewFile creates a file source. url overrides the page location reported
// for the file; when empty the file:// URL of path is used.
func NewFile(path, url string, logger zerolog.Logger) *File {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if url == "" {
		url = "file://" + filepath.ToSlash(path)
	}
	return &File{
		path:   path,
		url:    url,
		logger: logger.With().Str("component", "file_source").Str("path", path).Logger(),
	}
}

// Location returns the configured URL, or ErrNoPage while the file does not
// exist.
func (f *File) Location(ctx context.Context) (string, error) {
	if _, err := os.Stat(f.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrNoPage
		}
		return "", fmt.Errorf("stat %s: %w", f.path, err)
	}
	return f.url, nil
}

// Snapshot parses the file.
func (f *File) Snapshot(ctx context.Context) (*scanner.Snapshot, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoPage
		}
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	defer fh.Close()
	return scanner.Parse(fh, f.url)
}

// Watch calls notify whenever the file is written, created or replaced,
// until ctx is cancelled. The parent directory is watched so editors that
// save by rename are still seen.
func (f *File) Watch(ctx context.Context, notify func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(f.path), err)
	}
	f.logger.Debug().Msg("Watching page file")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				f.logger.Debug().Str("op", ev.Op.String()).Msg("Page file changed")
				notify()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn().Err(err).Msg("File watcher error")
		}
	}
}
