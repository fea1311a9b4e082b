package testutil

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roach88/labshot/internal/browser"
)

// DOM hooks of the JupyterLab shell as rendered by the real application.
const (
	jShell          = "#main"
	jMenuBarItem    = ".lm-MenuBar-itemLabel"
	jMenuItem       = ".lm-Menu-itemLabel"
	jDialog         = ".jp-Dialog-content"
	jDialogAccept   = ".jp-Dialog-button.jp-mod-accept"
	jDialogReject   = ".jp-Dialog-button.jp-mod-reject"
	jDialogWarn     = ".jp-Dialog-button.jp-mod-warn"
	jBreadCrumbHome = ".jp-FileBrowser .jp-BreadCrumbs-home"
	jBreadCrumbItem = ".jp-FileBrowser .jp-BreadCrumbs-item"
	jDirListing     = ".jp-FileBrowser .jp-DirListing-content"
	jDirItemText    = ".jp-FileBrowser .jp-DirListing-itemText"
	jTab            = ".lm-DockPanel-tabBar .lm-TabBar-tab"
	jCurrentTab     = ".lm-DockPanel-tabBar .lm-TabBar-tab.lm-mod-current"
	jDirtyTab       = ".lm-DockPanel-tabBar .lm-TabBar-tab.lm-mod-current.jp-mod-dirty"
	jTabClose       = ".lm-TabBar-tabCloseIcon"
	jActivePanel    = ".jp-NotebookPanel:not(.lm-mod-hidden)"
	jNotebook       = jActivePanel + " .jp-NotebookPanel-notebook"
	jCell           = jActivePanel + " .jp-Cell"
	jPrompt         = ".jp-InputArea-prompt"
	jOutput         = ".jp-OutputArea-output"
)

var jMenus = map[string][]string{
	"File":   {"New", "Save Notebook", "Close Tab"},
	"Run":    {"Run Selected Cell", "Run All Cells"},
	"Kernel": {"Interrupt Kernel", "Restart Kernel…", "Restart Kernel and Run All Cells…"},
}

// FakeJupyter scripts a FakePage to behave like a JupyterLab instance
// serving a tree of directories and notebooks.
//
// Notebooks are lists of cell outputs: running cell i shows Outputs[i]
// and an execution count. Restarting the kernel clears counts and outputs.
// The notebook panel text encodes prompts, outputs and the selected cell,
// so FakePage screenshots of identical notebook states are identical.
type FakeJupyter struct {
	Page *FakePage

	mu        sync.Mutex
	files     map[string][]string
	cwd       string
	open      string
	prompts   []string
	outputs   [][]string
	selected  int
	counter   int
	dirty     bool
	pending   func()
	restarts  int
	saves     int
	keepBusy  bool
	slowClose time.Duration
}

// NewFakeJupyter returns a fake app on a new page. notebooks maps a
// document path to the outputs of each of its cells.
func NewFakeJupyter(notebooks map[string][]string) *FakeJupyter {
	j := &FakeJupyter{Page: NewFakePage(), files: notebooks}
	p := j.Page

	p.Set(jShell, "")
	p.Set(jBreadCrumbHome, "")
	p.Set(jDirListing, "")
	p.Set(jMenuBarItem, "File", "Edit", "View", "Run", "Kernel")

	p.OnClick(jBreadCrumbHome, func(FakeElement) { j.cd("") })
	p.OnDoubleClick(jDirItemText, func(el FakeElement) { j.openEntry(el.Text) })
	p.OnClick(jMenuBarItem, func(el FakeElement) { p.Set(jMenuItem, jMenus[el.Text]...) })
	p.OnClick(jMenuItem, func(el FakeElement) {
		p.Remove(jMenuItem)
		j.menu(el.Text)
	})
	p.OnClick(jDialogAccept, func(FakeElement) { j.closeDialog(true) })
	p.OnClick(jDialogWarn, func(FakeElement) { j.closeDialog(true) })
	p.OnClick(jDialogReject, func(FakeElement) { j.closeDialog(false) })
	p.OnClick(browser.CSS(jCurrentTab).Then(jTabClose).Selector(), func(FakeElement) { j.closeTab() })
	p.OnClick(jCell, func(el FakeElement) {
		var i int
		if _, err := fmt.Sscanf(el.Text, "cell %d", &i); err == nil {
			j.selectCell(i)
		}
	})
	p.OnPress(func(_ browser.Locator, combo string) { j.press(combo) })
	return j
}

// Restarts returns how many times the kernel was restarted.
func (j *FakeJupyter) Restarts() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.restarts
}

// Saves returns how many times the open notebook was saved.
func (j *FakeJupyter) Saves() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.saves
}

// OpenDocument returns the path of the open notebook, or "".
func (j *FakeJupyter) OpenDocument() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.open
}

// KeepBusy leaves every executed cell in the running state.
func (j *FakeJupyter) KeepBusy(busy bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.keepBusy = busy
}

// SlowCloseDialog delays the unsaved changes dialog shown when a dirty
// notebook is closed.
func (j *FakeJupyter) SlowCloseDialog(d time.Duration) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.slowClose = d
}

// MarkDirty flags the open notebook as having unsaved changes.
func (j *FakeJupyter) MarkDirty() {
	j.mu.Lock()
	j.dirty = true
	j.mu.Unlock()
	j.render()
}

// PanelText returns the text the notebook panel currently renders.
func (j *FakeJupyter) PanelText() string {
	texts := j.Page.TextsOf(jNotebook)
	if len(texts) == 0 {
		return ""
	}
	return texts[0]
}

func (j *FakeJupyter) cd(dir string) {
	j.mu.Lock()
	j.cwd = dir
	seen := map[string]bool{}
	var entries []string
	for p := range j.files {
		rel := p
		if dir != "" {
			if !strings.HasPrefix(p, dir+"/") {
				continue
			}
			rel = strings.TrimPrefix(p, dir+"/")
		}
		name := strings.SplitN(rel, "/", 2)[0]
		if !seen[name] {
			seen[name] = true
			entries = append(entries, name)
		}
	}
	sort.Strings(entries)
	var crumbs []string
	if dir != "" {
		crumbs = strings.Split(dir, "/")
	}
	j.mu.Unlock()

	j.Page.Set(jDirItemText, entries...)
	j.Page.Set(jBreadCrumbItem, crumbs...)
}

func (j *FakeJupyter) openEntry(name string) {
	j.mu.Lock()
	full := path.Join(j.cwd, name)
	outputs, isFile := j.files[full]
	j.mu.Unlock()

	if !isFile {
		j.cd(full)
		return
	}

	j.mu.Lock()
	j.open = full
	j.prompts = make([]string, len(outputs))
	j.outputs = make([][]string, len(outputs))
	for i := range j.prompts {
		j.prompts[i] = "[ ]:"
	}
	j.selected = 0
	j.dirty = false
	j.mu.Unlock()

	j.Page.Set(jTab, name)
	j.Page.Set(jCurrentTab, name)
	j.Page.Set(browser.CSS(jCurrentTab).Then(jTabClose).Selector(), "")
	j.render()
}

func (j *FakeJupyter) closeTab() {
	j.mu.Lock()
	dirty, delay := j.dirty, j.slowClose
	j.mu.Unlock()
	if dirty && delay > 0 {
		time.AfterFunc(delay, func() { j.showDialog("Save your work", j.forget) })
		return
	}
	if dirty {
		j.showDialog("Save your work", j.forget)
		return
	}
	j.forget()
}

func (j *FakeJupyter) forget() {
	j.mu.Lock()
	n := len(j.prompts)
	j.open = ""
	j.prompts = nil
	j.outputs = nil
	j.dirty = false
	j.mu.Unlock()

	j.Page.Remove(jTab)
	j.Page.Remove(jCurrentTab)
	j.Page.Remove(jDirtyTab)
	j.Page.Remove(browser.CSS(jCurrentTab).Then(jTabClose).Selector())
	j.Page.Remove(jNotebook)
	j.Page.Remove(jCell)
	j.Page.Remove(jCell + " " + jPrompt)
	for i := 0; i < n; i++ {
		cell := browser.CSS(jCell).At(i)
		j.Page.OnClick(cell.Then(jPrompt).Selector(), nil)
		j.Page.Remove(cell.Then(jPrompt).Selector())
		j.Page.Remove(cell.Then(jOutput).Selector())
	}
}

func (j *FakeJupyter) menu(item string) {
	switch item {
	case "Run All Cells":
		j.runAll()
	case "Restart Kernel…":
		j.showDialog("Restart Kernel?", j.restart)
	case "Restart Kernel and Run All Cells…":
		j.showDialog("Restart Kernel?", func() {
			j.restart()
			j.runAll()
		})
	case "Save Notebook":
		j.save()
	case "Close Tab":
		j.closeTab()
	}
}

func (j *FakeJupyter) showDialog(title string, onAccept func()) {
	j.mu.Lock()
	j.pending = onAccept
	j.mu.Unlock()
	j.Page.Set(jDialog, title)
	j.Page.Set(jDialogAccept, "Accept")
	j.Page.Set(jDialogReject, "Cancel")
	j.Page.Set(jDialogWarn, "Discard")
}

func (j *FakeJupyter) closeDialog(accept bool) {
	j.mu.Lock()
	fn := j.pending
	j.pending = nil
	j.mu.Unlock()

	j.Page.Remove(jDialog)
	j.Page.Remove(jDialogAccept)
	j.Page.Remove(jDialogReject)
	j.Page.Remove(jDialogWarn)
	if accept && fn != nil {
		fn()
	}
}

func (j *FakeJupyter) press(combo string) {
	switch strings.ToLower(combo) {
	case "shift+enter":
		j.mu.Lock()
		i := j.selected
		if i < len(j.prompts)-1 {
			j.selected++
		}
		j.mu.Unlock()
		j.execute(i)
	case "control+enter", "ctrl+enter":
		j.mu.Lock()
		i := j.selected
		j.mu.Unlock()
		j.execute(i)
	case "control+s", "ctrl+s":
		j.save()
	}
}

func (j *FakeJupyter) save() {
	j.mu.Lock()
	j.dirty = false
	j.saves++
	j.mu.Unlock()
	j.render()
}

func (j *FakeJupyter) restart() {
	j.mu.Lock()
	j.counter = 0
	j.restarts++
	for i := range j.prompts {
		j.prompts[i] = "[ ]:"
		j.outputs[i] = nil
	}
	j.mu.Unlock()
	j.render()
}

func (j *FakeJupyter) runAll() {
	j.mu.Lock()
	n := len(j.prompts)
	j.mu.Unlock()
	for i := 0; i < n; i++ {
		j.execute(i)
	}
}

func (j *FakeJupyter) execute(i int) {
	j.mu.Lock()
	if i < 0 || i >= len(j.prompts) {
		j.mu.Unlock()
		return
	}
	if j.keepBusy {
		j.prompts[i] = "[*]:"
	} else {
		j.counter++
		j.prompts[i] = fmt.Sprintf("[%d]:", j.counter)
		if out := j.files[j.open][i]; out != "" {
			j.outputs[i] = []string{out}
		}
	}
	j.dirty = true
	j.mu.Unlock()
	j.render()
}

func (j *FakeJupyter) selectCell(i int) {
	j.mu.Lock()
	j.selected = i
	j.mu.Unlock()
	j.render()
}

// render mirrors the notebook model into the page.
func (j *FakeJupyter) render() {
	j.mu.Lock()
	if j.open == "" {
		j.mu.Unlock()
		return
	}
	prompts := append([]string(nil), j.prompts...)
	outputs := make([][]string, len(j.outputs))
	copy(outputs, j.outputs)
	selected, dirty := j.selected, j.dirty
	j.mu.Unlock()

	p := j.Page
	cells := make([]string, len(prompts))
	var state strings.Builder
	for i := range prompts {
		cells[i] = fmt.Sprintf("cell %d", i)
		cell := browser.CSS(jCell).At(i)
		idx := i
		p.Set(cell.Then(jPrompt).Selector(), prompts[i])
		p.Set(cell.Then(jOutput).Selector(), outputs[i]...)
		p.OnClick(cell.Then(jPrompt).Selector(), func(FakeElement) { j.selectCell(idx) })
		fmt.Fprintf(&state, "%s %s|", prompts[i], strings.Join(outputs[i], ","))
	}
	fmt.Fprintf(&state, "selected=%d", selected)

	p.Set(jCell, cells...)
	p.Set(jCell+" "+jPrompt, prompts...)
	p.Set(jNotebook, state.String())
	if dirty {
		p.Set(jDirtyTab, path.Base(j.OpenDocument()))
	} else {
		p.Remove(jDirtyTab)
	}
}
