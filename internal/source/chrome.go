package source

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/goodtune/rollcall/internal/platform"
	"github.com/goodtune/rollcall/internal/scanner"
)

const snapshotTimeout = 10 * time.Second

// Chrome reads the meeting tab of a browser exposing the DevTools protocol.
//
// Tab contexts are only cancelled once the tab has gone away: chromedp
// closes the target when its context ends.
type Chrome struct {
	browserCtx context.Context
	pinned     string
	anyPage    bool
	logger     zerolog.Logger

	mu        sync.Mutex
	targetID  target.ID
	tabCtx    context.Context
	tabCancel context.CancelFunc
}

// NewChrome connects lazily to the DevTools endpoint (http or ws URL). When
// targetID is empty the first tab on a meeting URL is used; anyPage widens
// that to the first ordinary page.
func NewChrome(endpoint, targetID string, anyPage bool, logger zerolog.Logger) *Chrome {
	allocCtx, _ := chromedp.NewRemoteAllocator(context.Background(), endpoint)
	browserCtx, _ := chromedp.NewContext(allocCtx)
	return &Chrome{
		browserCtx: browserCtx,
		pinned:     targetID,
		anyPage:    anyPage,
		logger:     logger.With().Str("component", "chrome").Str("endpoint", endpoint).Logger(),
	}
}

// Location returns the URL of the tracked tab.
func (c *Chrome) Location(ctx context.Context) (string, error) {
	info, err := c.selectTarget(ctx)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Snapshot serializes the DOM of the tracked tab.
func (c *Chrome) Snapshot(ctx context.Context) (*scanner.Snapshot, error) {
	tabCtx, err := c.tab(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(tabCtx, snapshotTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var url, doc string
	if err := chromedp.Run(runCtx,
		chromedp.Location(&url),
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("read tab DOM: %w", err)
	}
	return scanner.ParseString(doc, url)
}

// Targets lists the browser's page targets.
func (c *Chrome) Targets(ctx context.Context) ([]*target.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := chromedp.Targets(c.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("list browser targets: %w", err)
	}
	pages := infos[:0]
	for _, info := range infos {
		if info.Type == "page" {
			pages = append(pages, info)
		}
	}
	return pages, nil
}

func (c *Chrome) selectTarget(ctx context.Context) (*target.Info, error) {
	pages, err := c.Targets(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.targetID != "" {
		for _, info := range pages {
			if info.TargetID == c.targetID {
				return info, nil
			}
		}
		c.logger.Info().Str("target_id", string(c.targetID)).Msg("Tab closed")
		c.detachLocked()
	}

	info := pickTarget(pages, c.pinned, c.anyPage)
	if info == nil {
		return nil, ErrNoPage
	}
	c.targetID = info.TargetID
	c.logger.Info().
		Str("target_id", string(info.TargetID)).
		Str("url", info.URL).
		Msg("Tracking tab")
	return info, nil
}

func (c *Chrome) tab(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.targetID == "" {
		return nil, ErrNoPage
	}
	if c.tabCtx != nil {
		return c.tabCtx, nil
	}

	tabCtx, cancel := chromedp.NewContext(c.browserCtx, chromedp.WithTargetID(c.targetID))
	// The first Run attaches to the tab and must use the undecorated context.
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("attach to tab %s: %w", c.targetID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.tabCtx, c.tabCancel = tabCtx, cancel
	return tabCtx, nil
}

func (c *Chrome) detachLocked() {
	if c.tabCancel != nil {
		c.tabCancel()
	}
	c.targetID = ""
	c.tabCtx, c.tabCancel = nil, nil
}

// pickTarget chooses the tab to follow: the pinned id when given, else the
// first meeting tab, else (with anyPage) the first page at all.
func pickTarget(pages []*target.Info, pinned string, anyPage bool) *target.Info {
	if pinned != "" {
		for _, info := range pages {
			if string(info.TargetID) == pinned {
				return info
			}
		}
		return nil
	}
	for _, info := range pages {
		if platform.IsMeetingURL(info.URL) {
			return info
		}
	}
	if anyPage && len(pages) > 0 {
		return pages[0]
	}
	return nil
}
