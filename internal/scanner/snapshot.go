package scanner

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Snapshot is a parsed copy of a meeting page at one point in time.
type Snapshot struct {
	URL   string
	Taken time.Time
	doc   *goquery.Document
}

// Parse reads an HTML document and wraps it as a snapshot of url.
func Parse(r io.Reader, url string) (*Snapshot, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return &Snapshot{URL: url, Taken: time.Now(), doc: doc}, nil
}

// ParseString is Parse over an in-memory document.
func ParseString(html, url string) (*Snapshot, error) {
	return Parse(strings.NewReader(html), url)
}

// Document returns the underlying goquery document, or nil.
func (s *Snapshot) Document() *goquery.Document {
	if s == nil {
		return nil
	}
	return s.doc
}

// BodyText returns the text content of the page body.
func (s *Snapshot) BodyText() string {
	if s == nil || s.doc == nil {
		return ""
	}
	return s.doc.Find("body").Text()
}

func (s *Snapshot) empty() bool {
	return s == nil || s.doc == nil || s.doc.Selection == nil || len(s.doc.Nodes) == 0
}
