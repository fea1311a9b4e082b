package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/roach88/labshot/internal/failure"
)

// Page is a browser tab as seen by the harness. Every method blocks until
// the action has been applied or ctx expires. Element-addressed methods
// wait for the element to appear; a missing element is reported as a
// NOT_FOUND failure once the wait times out.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, loc Locator) error
	DoubleClick(ctx context.Context, loc Locator) error
	Hover(ctx context.Context, loc Locator) error
	// Press sends a key combination. The element at loc is focused first
	// unless loc.CSS is empty, in which case keys go to the focused element.
	Press(ctx context.Context, loc Locator, combo string) error
	WaitVisible(ctx context.Context, loc Locator) error
	WaitGone(ctx context.Context, loc Locator) error
	Has(ctx context.Context, loc Locator) (bool, error)
	Count(ctx context.Context, loc Locator) (int, error)
	Text(ctx context.Context, loc Locator) (string, error)
	Texts(ctx context.Context, loc Locator) ([]string, error)
	// Screenshot captures loc as PNG once it is visible and its layout is stable.
	Screenshot(ctx context.Context, loc Locator) ([]byte, error)
	AddStyle(ctx context.Context, css string) error
	Close() error
}

// pollInterval is how often RodPage re-queries the DOM while waiting.
const pollInterval = 100 * time.Millisecond

// stableFor is how long an element's box must stay still before a screenshot.
const stableFor = 300 * time.Millisecond

// RodPage implements Page on top of a Rod page.
type RodPage struct {
	page    *rod.Page
	timeout time.Duration
	logger  *slog.Logger
}

var _ Page = (*RodPage)(nil)

func newRodPage(p *rod.Page, timeout time.Duration, logger *slog.Logger) *RodPage {
	return &RodPage{page: p, timeout: timeout, logger: logger}
}

func (p *RodPage) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

// Navigate loads url and waits for the load event.
func (p *RodPage) Navigate(ctx context.Context, url string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return failure.FromContext("navigate", url, fmt.Errorf("browser: navigate %s: %w", url, err))
	}
	if err := pg.WaitLoad(); err != nil {
		p.logger.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

// Click scrolls the element into view and clicks it with the left button.
func (p *RodPage) Click(ctx context.Context, loc Locator) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	el, err := p.element(ctx, "click", loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return p.actionErr(ctx, "click", loc, err)
	}
	return nil
}

// DoubleClick double-clicks the element, e.g. to open a file browser entry.
func (p *RodPage) DoubleClick(ctx context.Context, loc Locator) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	el, err := p.element(ctx, "double click", loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 2); err != nil {
		return p.actionErr(ctx, "double click", loc, err)
	}
	return nil
}

// Hover moves the mouse over the element.
func (p *RodPage) Hover(ctx context.Context, loc Locator) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	el, err := p.element(ctx, "hover", loc)
	if err != nil {
		return err
	}
	if err := el.Hover(); err != nil {
		return p.actionErr(ctx, "hover", loc, err)
	}
	return nil
}

// Press sends a key combination such as "Shift+Enter".
func (p *RodPage) Press(ctx context.Context, loc Locator, combo string) error {
	c, err := ParseCombo(combo)
	if err != nil {
		return err
	}

	ctx, cancel := p.bound(ctx)
	defer cancel()

	if loc.CSS != "" {
		el, err := p.element(ctx, "press", loc)
		if err != nil {
			return err
		}
		if err := el.Focus(); err != nil {
			return p.actionErr(ctx, "focus", loc, err)
		}
	}

	ka := p.page.Context(ctx).KeyActions()
	if len(c.Modifiers) > 0 {
		ka = ka.Press(c.Modifiers...)
	}
	if err := ka.Type(c.Key).Do(); err != nil {
		return p.actionErr(ctx, "press "+combo, loc, err)
	}
	return nil
}

// WaitVisible blocks until the element exists and is visible.
func (p *RodPage) WaitVisible(ctx context.Context, loc Locator) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	el, err := p.element(ctx, "wait", loc)
	if err != nil {
		return err
	}
	if err := el.WaitVisible(); err != nil {
		return p.actionErr(ctx, "wait visible", loc, err)
	}
	return nil
}

// WaitGone blocks until no element matches loc.
func (p *RodPage) WaitGone(ctx context.Context, loc Locator) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	return poll(ctx, func() (bool, error) {
		els, err := p.matches(ctx, loc)
		if err != nil {
			return false, err
		}
		return len(els) == 0, nil
	}, "wait gone", loc)
}

// Has reports whether loc currently matches anything, without waiting.
func (p *RodPage) Has(ctx context.Context, loc Locator) (bool, error) {
	n, err := p.Count(ctx, loc)
	return n > 0, err
}

// Count returns the number of current matches, without waiting.
func (p *RodPage) Count(ctx context.Context, loc Locator) (int, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	els, err := p.matches(ctx, loc)
	if err != nil {
		return 0, err
	}
	return len(els), nil
}

// Text returns the inner text of the first match.
func (p *RodPage) Text(ctx context.Context, loc Locator) (string, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	el, err := p.element(ctx, "text", loc)
	if err != nil {
		return "", err
	}
	s, err := el.Text()
	if err != nil {
		return "", p.actionErr(ctx, "text", loc, err)
	}
	return s, nil
}

// Texts returns the inner text of every current match.
func (p *RodPage) Texts(ctx context.Context, loc Locator) ([]string, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	els, err := p.matches(ctx, loc)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		s, err := el.Text()
		if err != nil {
			return nil, p.actionErr(ctx, "text", loc, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Screenshot captures the element as PNG after it becomes visible and stable.
func (p *RodPage) Screenshot(ctx context.Context, loc Locator) ([]byte, error) {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	el, err := p.element(ctx, "screenshot", loc)
	if err != nil {
		return nil, err
	}
	if err := el.WaitVisible(); err != nil {
		return nil, p.actionErr(ctx, "screenshot", loc, err)
	}
	if err := el.WaitStable(stableFor); err != nil {
		return nil, p.actionErr(ctx, "screenshot", loc, err)
	}
	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, p.actionErr(ctx, "screenshot", loc, err)
	}
	return data, nil
}

// AddStyle injects a <style> element with css into the document.
func (p *RodPage) AddStyle(ctx context.Context, css string) error {
	ctx, cancel := p.bound(ctx)
	defer cancel()

	if err := p.page.Context(ctx).AddStyleTag("", css); err != nil {
		return failure.FromContext("add style", "", fmt.Errorf("browser: add style: %w", err))
	}
	return nil
}

// Close closes the tab.
func (p *RodPage) Close() error {
	if p.page == nil {
		return nil
	}
	return p.page.Close()
}

// element waits until loc resolves to an element and returns it.
func (p *RodPage) element(ctx context.Context, op string, loc Locator) (*rod.Element, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	var found *rod.Element
	err := poll(ctx, func() (bool, error) {
		els, err := p.matches(ctx, loc)
		if err != nil {
			return false, err
		}
		if len(els) == 0 {
			return false, nil
		}
		found = els[0]
		return true, nil
	}, op, loc)
	if failure.IsTimeout(err) {
		return nil, failure.Wrap(failure.CodeNotFound, op, loc.String(), err)
	}
	return found, err
}

// matches returns the current elements for loc without waiting.
func (p *RodPage) matches(ctx context.Context, loc Locator) (rod.Elements, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	var els rod.Elements
	if loc.Parent != nil {
		parents, err := p.matches(ctx, *loc.Parent)
		if err != nil {
			return nil, err
		}
		for _, parent := range parents {
			sub, err := parent.Elements(loc.CSS)
			if err != nil {
				return nil, failure.FromContext("query", loc.String(), err)
			}
			els = append(els, sub...)
		}
	} else {
		var err error
		els, err = p.page.Context(ctx).Elements(loc.CSS)
		if err != nil {
			return nil, failure.FromContext("query", loc.String(), err)
		}
	}
	if loc.Text == "" && loc.Nth < 0 {
		return els, nil
	}

	texts := make([]string, len(els))
	if loc.Text != "" {
		for i, el := range els {
			s, err := el.Text()
			if err != nil {
				// Detached between query and read; treat as non-matching.
				continue
			}
			texts[i] = s
		}
	}

	var out rod.Elements
	for _, i := range loc.Filter(texts) {
		out = append(out, els[i])
	}
	return out, nil
}

func (p *RodPage) actionErr(ctx context.Context, op string, loc Locator, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrap(failure.CodeTimeout, op, loc.String(), err)
	}
	return failure.Rejected(op, loc.String(), err)
}

// poll calls check until it reports done, returns an error, or ctx expires.
func poll(ctx context.Context, check func() (bool, error), op string, loc Locator) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return failure.Wrap(failure.CodeTimeout, op, loc.String(), ctx.Err())
		case <-ticker.C:
		}
	}
}
