// Package lab provides page objects for driving JupyterLab through a
// browser.Page: the file browser, the main menu, dialogs and notebooks.
//
// Page objects hold no state of their own; every method reads the DOM
// through the page, so a Lab can be rebuilt cheaply around a new page.
package lab

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/failure"
)

// JupyterLab DOM hooks.
const (
	selShell  = "#main"
	selSplash = "#jupyterlab-splash"

	selMenuBarItem = ".lm-MenuBar-itemLabel"
	selMenuItem    = ".lm-Menu-itemLabel"

	selDialog       = ".jp-Dialog-content"
	selDialogAccept = ".jp-Dialog-button.jp-mod-accept"
	selDialogReject = ".jp-Dialog-button.jp-mod-reject"
	selDialogWarn   = ".jp-Dialog-button.jp-mod-warn"

	selBreadCrumbHome = ".jp-FileBrowser .jp-BreadCrumbs-home"
	selBreadCrumbItem = ".jp-FileBrowser .jp-BreadCrumbs-item"
	selDirListing     = ".jp-FileBrowser .jp-DirListing-content"
	selDirItemText    = ".jp-FileBrowser .jp-DirListing-itemText"

	selTab        = ".lm-DockPanel-tabBar .lm-TabBar-tab"
	selCurrentTab = ".lm-DockPanel-tabBar .lm-TabBar-tab.lm-mod-current"
	selDirtyTab   = ".lm-DockPanel-tabBar .lm-TabBar-tab.lm-mod-current.jp-mod-dirty"
	selTabClose   = ".lm-TabBar-tabCloseIcon"

	selActivePanel = ".jp-NotebookPanel:not(.lm-mod-hidden)"
	selNotebook    = selActivePanel + " .jp-NotebookPanel-notebook"
	selCell        = selActivePanel + " .jp-Cell"
	selPrompt      = ".jp-InputArea-prompt"
	selOutput      = ".jp-OutputArea-output"
	selAllPrompts  = selCell + " " + selPrompt
)

// closeSettleTimeout bounds the wait for a closed tab to go away or for
// its unsaved changes dialog to show up.
const closeSettleTimeout = 5 * time.Second

// runningPrompt is the input prompt of a queued or executing cell.
const runningPrompt = "[*]"

// HideCellToolbar is a style sheet that removes the floating cell toolbar,
// which otherwise shows up in captures depending on mouse position.
const HideCellToolbar = ".jp-cell-toolbar{display: none}"

// Contents is the subset of the contents API the page objects need.
type Contents interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Lab is a JupyterLab instance open in a browser page.
type Lab struct {
	Page browser.Page

	// Contents answers whether a document exists before the UI is asked
	// to open it. Nil skips the check.
	Contents Contents

	// BaseURL is the server root, e.g. http://localhost:8888.
	BaseURL string
	Token   string

	// PollInterval paces waits that have no DOM event to hook into,
	// such as cells finishing execution. Default: 200ms.
	PollInterval time.Duration

	Logger *slog.Logger
}

func (l *Lab) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return l.Logger
}

// Goto loads the JupyterLab shell and waits for the splash screen to go away.
func (l *Lab) Goto(ctx context.Context) error {
	u := strings.TrimRight(l.BaseURL, "/") + "/lab"
	if l.Token != "" {
		u += "?token=" + l.Token
	}
	l.logger().Debug("lab: goto", "url", strings.TrimRight(l.BaseURL, "/")+"/lab")

	if err := l.Page.Navigate(ctx, u); err != nil {
		return err
	}
	if err := l.Page.WaitVisible(ctx, browser.CSS(selShell)); err != nil {
		return err
	}
	return l.Page.WaitGone(ctx, browser.CSS(selSplash))
}

// FileBrowser returns the file browser page object.
func (l *Lab) FileBrowser() *FileBrowser { return &FileBrowser{lab: l} }

// Menu returns the main menu page object.
func (l *Lab) Menu() *Menu { return &Menu{lab: l} }

// Dialog returns the modal dialog page object.
func (l *Lab) Dialog() *Dialog { return &Dialog{lab: l} }

// Notebook returns the page object for the active notebook.
func (l *Lab) Notebook() *Notebook { return &Notebook{lab: l} }

// waitUntil polls check until it reports true or ctx expires.
func (l *Lab) waitUntil(ctx context.Context, op, what string, check func() (bool, error)) error {
	interval := l.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := check()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return failure.Wrap(failure.CodeTimeout, op, what, ctx.Err())
		case <-ticker.C:
		}
	}
}

// exactText matches an element whose whole inner text is s, ignoring
// surrounding whitespace.
func exactText(s string) string {
	return `^\s*` + regexp.QuoteMeta(s) + `\s*$`
}

// labelText matches a menu label, tolerating a trailing ellipsis written
// either as "…" or "...".
func labelText(s string) string {
	s = strings.TrimSuffix(strings.TrimSuffix(s, "…"), "...")
	return `^\s*` + regexp.QuoteMeta(s) + `(…|\.\.\.)?\s*$`
}
