package harness

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/lab"
)

// Suite is an ordered set of tests sharing fixtures and a working directory.
type Suite struct {
	Name string

	// TmpPath is the working directory in application storage. Fixtures are
	// uploaded under it and it is deleted when the suite ends.
	TmpPath string

	Fixtures []Fixture

	// BeforeEach runs at the start of every test, inside its session.
	BeforeEach func(ctx context.Context, t *T) error

	Tests []Test
}

// Fixture is a local file uploaded into the suite's working directory.
type Fixture struct {
	// Source is the local path.
	Source string

	// Dest is the destination relative to the suite's TmpPath.
	Dest string
}

// Test is a single named test.
type Test struct {
	Name string

	// Timeout bounds the whole test including session setup. Zero uses
	// the runner's default.
	Timeout time.Duration

	Fn func(ctx context.Context, t *T) error
}

// Session is one connection to the application, scoped to a single test.
type Session struct {
	Page browser.Page
	Lab  *lab.Lab
}

// Close releases the session's page.
func (s *Session) Close() error {
	if s == nil || s.Page == nil {
		return nil
	}
	return s.Page.Close()
}

// SessionFactory opens a fresh session for each test.
type SessionFactory interface {
	NewSession(ctx context.Context) (*Session, error)
}

// PageOpener opens browser pages; *browser.Manager implements it.
type PageOpener interface {
	NewPage(ctx context.Context) (*browser.RodPage, error)
}

// BrowserSessions opens every session as a new browser tab with
// JupyterLab loaded.
type BrowserSessions struct {
	Browser  PageOpener
	Contents lab.Contents
	BaseURL  string
	Token    string
	Logger   *slog.Logger
}

// NewSession opens a tab and waits for the JupyterLab shell.
func (b *BrowserSessions) NewSession(ctx context.Context) (*Session, error) {
	page, err := b.Browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}

	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	l := &lab.Lab{
		Page:     page,
		Contents: b.Contents,
		BaseURL:  b.BaseURL,
		Token:    b.Token,
		Logger:   logger,
	}
	if err := l.Goto(ctx); err != nil {
		page.Close()
		return nil, err
	}
	return &Session{Page: page, Lab: l}, nil
}
