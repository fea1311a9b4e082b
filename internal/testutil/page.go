package testutil

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/failure"
)

// FakeElement is an element on a FakePage.
type FakeElement struct {
	Text   string
	Hidden bool
}

// FakePage is an in-memory browser.Page.
//
// Elements are registered per selector (Locator.Selector, so a nested
// locator is keyed by its whole chain) and filtered with the locator's
// Text and Nth exactly like a real page. Element-addressed actions fail
// with NOT_FOUND immediately when nothing matches; there is no waiting.
// Handlers registered with OnClick, OnPress and friends run synchronously
// and may mutate the page to simulate the application reacting.
//
// Every action is appended to an action log for assertions.
type FakePage struct {
	mu       sync.Mutex
	url      string
	elements map[string][]FakeElement
	styles   []string
	actions  []string
	errs     map[string]error
	closed   bool

	onClick    map[string]func(FakeElement)
	onDblClick map[string]func(FakeElement)
	onPress    func(loc browser.Locator, combo string)
	onNavigate func(url string)
}

var _ browser.Page = (*FakePage)(nil)

// NewFakePage creates an empty page.
func NewFakePage() *FakePage {
	return &FakePage{
		elements:   make(map[string][]FakeElement),
		errs:       make(map[string]error),
		onClick:    make(map[string]func(FakeElement)),
		onDblClick: make(map[string]func(FakeElement)),
	}
}

// Set replaces the elements under selector with one visible element per text.
func (p *FakePage) Set(selector string, texts ...string) {
	els := make([]FakeElement, len(texts))
	for i, t := range texts {
		els[i] = FakeElement{Text: t}
	}
	p.SetElements(selector, els...)
}

// SetElements replaces the elements under selector.
func (p *FakePage) SetElements(selector string, els ...FakeElement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(els) == 0 {
		delete(p.elements, selector)
		return
	}
	p.elements[selector] = append([]FakeElement(nil), els...)
}

// Remove deletes every element under selector.
func (p *FakePage) Remove(selector string) {
	p.SetElements(selector)
}

// TextsOf returns the texts currently registered under selector.
func (p *FakePage) TextsOf(selector string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, el := range p.elements[selector] {
		out = append(out, el.Text)
	}
	return out
}

// OnClick registers fn to run after an element under selector is clicked.
func (p *FakePage) OnClick(selector string, fn func(FakeElement)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClick[selector] = fn
}

// OnDoubleClick registers fn to run after an element under selector is double-clicked.
func (p *FakePage) OnDoubleClick(selector string, fn func(FakeElement)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onDblClick[selector] = fn
}

// OnPress registers fn to run after every key press.
func (p *FakePage) OnPress(fn func(loc browser.Locator, combo string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPress = fn
}

// OnNavigate registers fn to run after every navigation.
func (p *FakePage) OnNavigate(fn func(url string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNavigate = fn
}

// FailOn makes every call of action ("click", "press", "screenshot", ...)
// return err. A nil err clears the failure.
func (p *FakePage) FailOn(action string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.errs, action)
		return
	}
	p.errs[action] = err
}

// Actions returns the action log.
func (p *FakePage) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// ResetActions clears the action log.
func (p *FakePage) ResetActions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = nil
}

// URL returns the last navigated URL.
func (p *FakePage) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Styles returns the injected style sheets.
func (p *FakePage) Styles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.styles...)
}

// Closed reports whether Close was called.
func (p *FakePage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := p.begin(ctx, "navigate", url); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	fn := p.onNavigate
	p.mu.Unlock()
	if fn != nil {
		fn(url)
	}
	return nil
}

func (p *FakePage) Click(ctx context.Context, loc browser.Locator) error {
	return p.clickWith(ctx, "click", loc, func() func(FakeElement) { return p.onClick[loc.Selector()] })
}

func (p *FakePage) DoubleClick(ctx context.Context, loc browser.Locator) error {
	return p.clickWith(ctx, "dblclick", loc, func() func(FakeElement) { return p.onDblClick[loc.Selector()] })
}

func (p *FakePage) clickWith(ctx context.Context, action string, loc browser.Locator, handler func() func(FakeElement)) error {
	if err := p.begin(ctx, action, loc.String()); err != nil {
		return err
	}
	els, err := p.resolve(action, loc)
	if err != nil {
		return err
	}
	p.mu.Lock()
	fn := handler()
	p.mu.Unlock()
	if fn != nil {
		fn(els[0])
	}
	return nil
}

func (p *FakePage) Hover(ctx context.Context, loc browser.Locator) error {
	if err := p.begin(ctx, "hover", loc.String()); err != nil {
		return err
	}
	_, err := p.resolve("hover", loc)
	return err
}

func (p *FakePage) Press(ctx context.Context, loc browser.Locator, combo string) error {
	if _, err := browser.ParseCombo(combo); err != nil {
		return err
	}
	if err := p.begin(ctx, "press", strings.TrimSpace(loc.String()+" "+combo)); err != nil {
		return err
	}
	if loc.CSS != "" {
		if _, err := p.resolve("press", loc); err != nil {
			return err
		}
	}
	p.mu.Lock()
	fn := p.onPress
	p.mu.Unlock()
	if fn != nil {
		fn(loc, combo)
	}
	return nil
}

func (p *FakePage) WaitVisible(ctx context.Context, loc browser.Locator) error {
	if err := p.begin(ctx, "wait", loc.String()); err != nil {
		return err
	}
	els, err := p.resolve("wait", loc)
	if err != nil {
		return err
	}
	if els[0].Hidden {
		return failure.Wrap(failure.CodeTimeout, "wait visible", loc.String(), context.DeadlineExceeded)
	}
	return nil
}

func (p *FakePage) WaitGone(ctx context.Context, loc browser.Locator) error {
	if err := p.begin(ctx, "wait_gone", loc.String()); err != nil {
		return err
	}
	if len(p.match(loc)) > 0 {
		return failure.Wrap(failure.CodeTimeout, "wait gone", loc.String(), context.DeadlineExceeded)
	}
	return nil
}

func (p *FakePage) Has(ctx context.Context, loc browser.Locator) (bool, error) {
	n, err := p.Count(ctx, loc)
	return n > 0, err
}

func (p *FakePage) Count(ctx context.Context, loc browser.Locator) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, failure.FromContext("count", loc.String(), err)
	}
	if err := loc.Validate(); err != nil {
		return 0, err
	}
	return len(p.match(loc)), nil
}

func (p *FakePage) Text(ctx context.Context, loc browser.Locator) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", failure.FromContext("text", loc.String(), err)
	}
	els, err := p.resolve("text", loc)
	if err != nil {
		return "", err
	}
	return els[0].Text, nil
}

func (p *FakePage) Texts(ctx context.Context, loc browser.Locator) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure.FromContext("texts", loc.String(), err)
	}
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	out := []string{}
	for _, el := range p.match(loc) {
		out = append(out, el.Text)
	}
	return out, nil
}

// Screenshot renders a 4x4 PNG whose color is derived from the element
// text, so identical page states produce identical captures.
func (p *FakePage) Screenshot(ctx context.Context, loc browser.Locator) ([]byte, error) {
	if err := p.begin(ctx, "screenshot", loc.String()); err != nil {
		return nil, err
	}
	els, err := p.resolve("screenshot", loc)
	if err != nil {
		return nil, err
	}
	return RenderPNG(els[0].Text), nil
}

func (p *FakePage) AddStyle(ctx context.Context, css string) error {
	if err := p.begin(ctx, "style", css); err != nil {
		return err
	}
	p.mu.Lock()
	p.styles = append(p.styles, css)
	p.mu.Unlock()
	return nil
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// begin logs the action and returns an injected or context error.
func (p *FakePage) begin(ctx context.Context, action, detail string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry := action
	if detail != "" {
		entry += " " + detail
	}
	p.actions = append(p.actions, entry)

	if p.closed {
		return failure.Rejected(action, detail, fmt.Errorf("page closed"))
	}
	if err := ctx.Err(); err != nil {
		return failure.FromContext(action, detail, err)
	}
	if err, ok := p.errs[action]; ok {
		return err
	}
	return nil
}

func (p *FakePage) resolve(op string, loc browser.Locator) ([]FakeElement, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	els := p.match(loc)
	if len(els) == 0 {
		return nil, failure.NotFound(op, loc.String())
	}
	return els, nil
}

func (p *FakePage) match(loc browser.Locator) []FakeElement {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := p.elements[loc.Selector()]
	texts := make([]string, len(candidates))
	for i, el := range candidates {
		texts[i] = el.Text
	}
	var out []FakeElement
	for _, i := range loc.Filter(texts) {
		out = append(out, candidates[i])
	}
	return out
}

// RenderPNG returns a small solid PNG whose color is a hash of s.
func RenderPNG(s string) []byte {
	h := fnv.New32a()
	h.Write([]byte(s))
	sum := h.Sum32()
	c := color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 255}

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
