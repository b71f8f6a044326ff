package scanner

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/goodtune/rollcall/internal/metrics"
	"github.com/goodtune/rollcall/internal/names"
	"github.com/goodtune/rollcall/internal/platform"
)

// Result is the outcome of scanning one snapshot.
type Result struct {
	Candidates    []string
	Ended         bool
	Strategy      Strategy
	ReportedCount int
}

var counterPattern = regexp.MustCompile(`(?i)(\d+)\s*participant`)

var leftMeetingPhrases = []string{
	"You've left the meeting",
	"You’ve left the meeting",
}

var leaveButtonSelectors = []string{
	`button[aria-label*="Return to home screen"]`,
	`button[aria-label*="Rejoin"]`,
}

// Scanner extracts participant names from page snapshots. Selectors are
// compiled once; a Scanner is safe for concurrent use.
type Scanner struct {
	logger   zerolog.Logger
	compiled map[string]cascadia.Selector
	invalid  map[string]error
}

// New creates a scanner with every known selector compiled up front.
// Selectors that fail to compile are remembered and skipped at scan time.
func New(logger zerolog.Logger) *Scanner {
	s := &Scanner{
		logger:   logger.With().Str("component", "scanner").Logger(),
		compiled: make(map[string]cascadia.Selector),
		invalid:  make(map[string]error),
	}

	add := func(list []string) {
		for _, sel := range list {
			if _, ok := s.compiled[sel]; ok {
				continue
			}
			if _, ok := s.invalid[sel]; ok {
				continue
			}
			c, err := cascadia.Compile(sel)
			if err != nil {
				s.invalid[sel] = err
				s.logger.Warn().Err(err).Str("selector", sel).Msg("Invalid selector, skipping")
				continue
			}
			s.compiled[sel] = c
		}
	}

	for _, p := range platform.All() {
		prof := platform.ProfileFor(p)
		add(prof.NameSelectors)
		add(prof.TileSelectors)
		add(prof.CounterSelectors)
	}
	add(platform.GenericSelectors)
	add(platform.AriaSelectors)
	add(leaveButtonSelectors)

	return s
}

// Scan runs the platform's strategies against snap in order until one yields
// candidates. It never fails: broken selectors are skipped and an empty or
// nil snapshot produces an empty result.
func (s *Scanner) Scan(snap *Snapshot, p platform.Platform) Result {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues(p.String()).Observe(time.Since(start).Seconds())
	}()

	var res Result
	if snap.empty() {
		metrics.ScansTotal.WithLabelValues(p.String(), res.Strategy.String()).Inc()
		return res
	}

	prof := platform.ProfileFor(p)
	doc := snap.Document()

	if prof.DetectsLeave && s.leftMeeting(doc, snap, p) {
		res.Ended = true
		metrics.ScansTotal.WithLabelValues(p.String(), res.Strategy.String()).Inc()
		return res
	}

	res.ReportedCount = s.reportedCount(doc, prof, p)

	found := make(map[string]struct{})
	s.primary(doc, prof, p, found)
	if len(found) > 0 {
		res.Strategy = StrategyPrimary
	}
	if len(found) == 0 {
		s.aria(doc, prof, p, found)
		if len(found) > 0 {
			res.Strategy = StrategyAria
		}
	}
	if len(found) == 0 {
		s.generic(doc, prof, p, found)
		if len(found) > 0 {
			res.Strategy = StrategyGeneric
		}
	}
	if len(found) == 0 {
		s.tiles(doc, prof, p, found)
		if len(found) > 0 {
			res.Strategy = StrategyTiles
		}
	}

	res.Candidates = make([]string, 0, len(found))
	for name := range found {
		res.Candidates = append(res.Candidates, name)
	}
	sort.Strings(res.Candidates)

	metrics.ScansTotal.WithLabelValues(p.String(), res.Strategy.String()).Inc()
	s.logger.Debug().
		Str("platform", p.String()).
		Str("strategy", res.Strategy.String()).
		Int("candidates", len(res.Candidates)).
		Int("reported_count", res.ReportedCount).
		Msg("Scan complete")

	return res
}

// query runs one selector against doc, recovering from anything the query
// throws so a single bad selector cannot abort a scan.
func (s *Scanner) query(doc *goquery.Document, sel string, p platform.Platform, fn func(*goquery.Selection)) {
	c, ok := s.compiled[sel]
	if !ok {
		metrics.SelectorFailures.WithLabelValues(p.String()).Inc()
		s.logger.Debug().Str("selector", sel).Str("platform", p.String()).Msg("Selector unavailable")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.SelectorFailures.WithLabelValues(p.String()).Inc()
			s.logger.Debug().
				Str("selector", sel).
				Str("platform", p.String()).
				Str("panic", fmt.Sprint(r)).
				Msg("Selector query failed")
		}
	}()

	doc.FindMatcher(c).Each(func(_ int, el *goquery.Selection) {
		fn(el)
	})
}

func (s *Scanner) primary(doc *goquery.Document, prof platform.Profile, p platform.Platform, found map[string]struct{}) {
	for _, sel := range prof.NameSelectors {
		s.query(doc, sel, p, func(el *goquery.Selection) {
			if name := names.Clean(elementText(el)); prof.Filter.Accept(name) {
				found[name] = struct{}{}
			}
		})
	}
}

func (s *Scanner) aria(doc *goquery.Document, prof platform.Profile, p platform.Platform, found map[string]struct{}) {
	for _, sel := range platform.AriaSelectors {
		s.query(doc, sel, p, func(el *goquery.Selection) {
			label := attr(el, "aria-label")
			if label == "" {
				label = attr(el, "title")
			}
			if label == "" {
				return
			}
			if name := names.FromAriaLabel(label); name != "" && prof.Filter.Accept(name) {
				found[name] = struct{}{}
			}
		})
	}
}

func (s *Scanner) generic(doc *goquery.Document, prof platform.Profile, p platform.Platform, found map[string]struct{}) {
	for _, sel := range platform.GenericSelectors {
		s.query(doc, sel, p, func(el *goquery.Selection) {
			if name := names.Clean(elementText(el)); prof.Filter.Accept(name) {
				found[name] = struct{}{}
			}
		})
	}
}

// tiles counts distinguishable video tiles. A tile contributes the name in
// its first span when that passes the filter, otherwise a numbered
// placeholder.
func (s *Scanner) tiles(doc *goquery.Document, prof platform.Profile, p platform.Platform, found map[string]struct{}) {
	seenNodes := make(map[*html.Node]struct{})
	seenIDs := make(map[string]struct{})
	count := 0

	for _, sel := range prof.TileSelectors {
		s.query(doc, sel, p, func(el *goquery.Selection) {
			node := el.Get(0)
			if _, ok := seenNodes[node]; ok {
				return
			}
			seenNodes[node] = struct{}{}

			id := tileID(el)
			if _, ok := seenIDs[id]; ok {
				return
			}
			seenIDs[id] = struct{}{}
			count++

			if span := el.Find("span").First(); span.Length() > 0 {
				if name := names.Clean(elementText(span)); prof.Filter.Accept(name) {
					found[name] = struct{}{}
					return
				}
			}
			found["Participant "+strconv.Itoa(count)] = struct{}{}
		})
	}

	if count > 0 {
		s.logger.Debug().Int("tiles", count).Str("platform", p.String()).Msg("Video tile fallback")
	}
}

func (s *Scanner) reportedCount(doc *goquery.Document, prof platform.Profile, p platform.Platform) int {
	best := 0
	for _, sel := range prof.CounterSelectors {
		s.query(doc, sel, p, func(el *goquery.Selection) {
			for _, text := range []string{el.Text(), attr(el, "aria-label"), attr(el, "data-tooltip")} {
				m := counterPattern.FindStringSubmatch(text)
				if m == nil {
					continue
				}
				if n, err := strconv.Atoi(m[1]); err == nil && n > best {
					best = n
				}
			}
		})
	}
	return best
}

func (s *Scanner) leftMeeting(doc *goquery.Document, snap *Snapshot, p platform.Platform) bool {
	body := snap.BodyText()
	for _, phrase := range leftMeetingPhrases {
		if strings.Contains(body, phrase) {
			return true
		}
	}
	for _, sel := range leaveButtonSelectors {
		hit := false
		s.query(doc, sel, p, func(*goquery.Selection) { hit = true })
		if hit {
			return true
		}
	}
	return false
}

// elementText mirrors how a browser would label an element: its text
// content, then aria-label, then title.
func elementText(el *goquery.Selection) string {
	if text := strings.TrimSpace(el.Text()); text != "" {
		return text
	}
	if label := attr(el, "aria-label"); label != "" {
		return label
	}
	return attr(el, "title")
}

func attr(el *goquery.Selection, name string) string {
	v, _ := el.Attr(name)
	return strings.TrimSpace(v)
}

func tileID(el *goquery.Selection) string {
	if id := attr(el, "data-participant-id"); id != "" {
		return id
	}
	if id := attr(el, "data-self-name"); id != "" {
		return id
	}
	sig, err := goquery.OuterHtml(el)
	if err != nil {
		return ""
	}
	if len(sig) > 100 {
		sig = sig[:100]
	}
	return sig
}
