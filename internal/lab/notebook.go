package lab

import (
	"context"
	"path"
	"strings"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/failure"
)

// Notebook drives the notebook in the active dock panel.
type Notebook struct {
	lab *Lab
}

// StepFunc is called after cell i of a cell-by-cell run has finished.
type StepFunc func(ctx context.Context, i int) error

// Panel addresses the notebook inside the active panel, the usual capture target.
func (n *Notebook) Panel() browser.Locator {
	return browser.CSS(selNotebook)
}

// Cell addresses the i-th (0-based) cell of the active notebook.
func (n *Notebook) Cell(i int) browser.Locator {
	return browser.CSS(selCell).At(i)
}

// Prompt addresses the input prompt of cell i.
func (n *Notebook) Prompt(i int) browser.Locator {
	return n.Cell(i).Then(selPrompt)
}

// Output addresses the output areas of cell i.
func (n *Notebook) Output(i int) browser.Locator {
	return n.Cell(i).Then(selOutput)
}

// InPanel addresses elements matching css inside the active notebook panel.
func (n *Notebook) InPanel(css string) browser.Locator {
	return browser.CSS(selActivePanel).Within(css)
}

// Tab addresses the dock panel tab labelled name.
func (n *Notebook) Tab(name string) browser.Locator {
	return browser.CSS(selTab).WithText(exactText(name))
}

// OpenByPath opens the document at p (relative to the server root) via the
// file browser and waits until its panel is shown. A document the contents
// API does not know yields NOT_FOUND without touching the UI.
func (n *Notebook) OpenByPath(ctx context.Context, p string) error {
	p = strings.Trim(p, "/")
	if n.lab.Contents != nil {
		ok, err := n.lab.Contents.Exists(ctx, p)
		if err != nil {
			return err
		}
		if !ok {
			return failure.NotFound("open", p)
		}
	}

	dir, name := path.Split(p)
	fb := n.lab.FileBrowser()
	if err := fb.OpenDirectory(ctx, dir); err != nil {
		return err
	}
	if err := fb.Open(ctx, name); err != nil {
		return err
	}
	if err := n.lab.Page.WaitVisible(ctx, n.Tab(name)); err != nil {
		return err
	}
	if err := n.lab.Page.WaitVisible(ctx, n.Panel()); err != nil {
		return err
	}
	n.lab.logger().Debug("lab: opened notebook", "path", p)
	return nil
}

// Activate brings the tab labelled name to the front.
func (n *Notebook) Activate(ctx context.Context, name string) error {
	if err := n.lab.Page.Click(ctx, n.Tab(name)); err != nil {
		return err
	}
	return n.lab.Page.WaitVisible(ctx, browser.CSS(selCurrentTab).WithText(exactText(name)))
}

// CellCount returns the number of cells in the active notebook.
func (n *Notebook) CellCount(ctx context.Context) (int, error) {
	return n.lab.Page.Count(ctx, browser.CSS(selCell))
}

// ClickCell selects cell i by clicking it.
func (n *Notebook) ClickCell(ctx context.Context, i int) error {
	return n.lab.Page.Click(ctx, n.Cell(i))
}

// RunCell selects cell i, executes it in place with Control+Enter and
// waits for it to finish. The selection does not move, so running the
// last cell never appends a new one.
func (n *Notebook) RunCell(ctx context.Context, i int) error {
	if err := n.lab.Page.Click(ctx, n.Prompt(i)); err != nil {
		return err
	}
	if err := n.lab.Page.Press(ctx, browser.Locator{}, "Control+Enter"); err != nil {
		return err
	}
	return n.waitCell(ctx, i)
}

// RunCellByCell runs every cell in order, waiting for each to finish and
// then calling onStep (if non-nil) before moving on. Cell i+1 is never
// started before onStep(i) has returned.
func (n *Notebook) RunCellByCell(ctx context.Context, onStep StepFunc) error {
	count, err := n.CellCount(ctx)
	if err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		if err := n.RunCell(ctx, i); err != nil {
			return err
		}
		n.lab.logger().Debug("lab: cell ran", "cell", i)
		if onStep != nil {
			if err := onStep(ctx, i); err != nil {
				return err
			}
		}
	}
	return n.WaitForRun(ctx)
}

// Run executes all cells from the Run menu and waits for them to finish.
func (n *Notebook) Run(ctx context.Context) error {
	if err := n.lab.Menu().ClickMenuItem(ctx, "Run>Run All Cells"); err != nil {
		return err
	}
	return n.WaitForRun(ctx)
}

// WaitForRun waits until no cell of the active notebook is queued or running.
func (n *Notebook) WaitForRun(ctx context.Context) error {
	return n.lab.waitUntil(ctx, "wait for run", selAllPrompts, func() (bool, error) {
		prompts, err := n.lab.Page.Texts(ctx, browser.CSS(selAllPrompts))
		if err != nil {
			return false, err
		}
		for _, p := range prompts {
			if strings.Contains(p, runningPrompt) {
				return false, nil
			}
		}
		return true, nil
	})
}

func (n *Notebook) waitCell(ctx context.Context, i int) error {
	loc := n.Prompt(i)
	return n.lab.waitUntil(ctx, "wait for cell", loc.String(), func() (bool, error) {
		texts, err := n.lab.Page.Texts(ctx, loc)
		if err != nil {
			return false, err
		}
		if len(texts) == 0 {
			return false, failure.NotFound("wait for cell", n.Cell(i).String())
		}
		return !strings.Contains(texts[0], runningPrompt), nil
	})
}

// Save saves the notebook with Control+S and waits for the dirty marker
// on its tab to clear.
func (n *Notebook) Save(ctx context.Context) error {
	if err := n.lab.Page.Press(ctx, n.Panel(), "Control+s"); err != nil {
		return err
	}
	return n.lab.Page.WaitGone(ctx, browser.CSS(selDirtyTab))
}

// Close closes the active notebook tab. With revert set, unsaved changes
// are discarded; otherwise they are saved. Close never fails: problems are
// logged and reported through the returned bool.
//
// The unsaved changes dialog can appear some time after the close click,
// so Close waits until either the dialog is shown or the tab is gone.
func (n *Notebook) Close(ctx context.Context, revert bool) bool {
	log := n.lab.logger()
	p := n.lab.Page

	name, err := p.Text(ctx, browser.CSS(selCurrentTab))
	if err != nil {
		log.Warn("lab: close notebook", "error", err)
		return false
	}
	if err := p.Click(ctx, browser.CSS(selCurrentTab).Then(selTabClose)); err != nil {
		log.Warn("lab: close notebook", "error", err)
		return false
	}

	d := n.lab.Dialog()
	var open bool
	wctx, cancel := context.WithTimeout(ctx, closeSettleTimeout)
	defer cancel()
	err = n.lab.waitUntil(wctx, "close", n.Tab(name).String(), func() (bool, error) {
		var err error
		if open, err = d.Open(wctx); err != nil || open {
			return open, err
		}
		has, err := p.Has(wctx, n.Tab(name))
		return !has, err
	})
	if err != nil {
		log.Warn("lab: close notebook", "tab", name, "error", err)
		return false
	}
	if !open {
		return true
	}

	if revert {
		err = d.Discard(ctx)
	} else {
		err = d.Accept(ctx)
	}
	if err != nil {
		log.Warn("lab: close notebook dialog", "revert", revert, "error", err)
		return false
	}
	return true
}

// CellTextOutput returns the text of every output area of cell i.
func (n *Notebook) CellTextOutput(ctx context.Context, i int) ([]string, error) {
	ok, err := n.lab.Page.Has(ctx, n.Cell(i))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, failure.NotFound("output", n.Cell(i).String())
	}
	return n.lab.Page.Texts(ctx, n.Output(i))
}

// RestartKernel restarts the kernel and confirms the dialog.
func (n *Notebook) RestartKernel(ctx context.Context) error {
	if err := n.lab.Menu().ClickMenuItem(ctx, "Kernel>Restart Kernel…"); err != nil {
		return err
	}
	return n.lab.Dialog().Accept(ctx)
}

// RestartAndRunAll restarts the kernel, runs all cells with a single
// command and waits for the run to finish.
func (n *Notebook) RestartAndRunAll(ctx context.Context) error {
	if err := n.lab.Menu().ClickMenuItem(ctx, "Kernel>Restart Kernel and Run All Cells…"); err != nil {
		return err
	}
	if err := n.lab.Dialog().Accept(ctx); err != nil {
		return err
	}
	return n.WaitForRun(ctx)
}

// Capture takes a PNG of target once it is visible and stable. A zero
// target captures the notebook panel.
func (n *Notebook) Capture(ctx context.Context, target browser.Locator) ([]byte, error) {
	if target.CSS == "" {
		target = n.Panel()
	}
	return n.lab.Page.Screenshot(ctx, target)
}

// CaptureText returns the inner text of target once it is visible.
func (n *Notebook) CaptureText(ctx context.Context, target browser.Locator) (string, error) {
	if err := n.lab.Page.WaitVisible(ctx, target); err != nil {
		return "", err
	}
	return n.lab.Page.Text(ctx, target)
}
