package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/lab"
	"github.com/roach88/labshot/internal/snapshot"
)

// runSteps interprets declarative steps as an action sequence on t's session.
func runSteps(ctx context.Context, t *T, tmp string, steps []Step) error {
	actions := make([]Action, len(steps))
	for i := range steps {
		step := &steps[i]
		actions[i] = func(ctx context.Context) error {
			return runStep(ctx, t, tmp, step)
		}
	}
	return RunSequentially(ctx, actions, func(_ context.Context, i int) error {
		t.Logger().Debug("harness: step done", "step", i, "action", steps[i].Kind())
		return nil
	})
}

func expandTmp(s, tmp string) string {
	return strings.ReplaceAll(s, tmpPlaceholder, tmp)
}

func runStep(ctx context.Context, t *T, tmp string, s *Step) error {
	l := t.Lab()
	nb := l.Notebook()

	switch {
	case s.Goto != nil:
		return l.Goto(ctx)
	case s.OpenDirectory != nil:
		return l.FileBrowser().OpenDirectory(ctx, expandTmp(*s.OpenDirectory, tmp))
	case s.Open != nil:
		return nb.OpenByPath(ctx, expandTmp(*s.Open, tmp))
	case s.Activate != nil:
		return nb.Activate(ctx, *s.Activate)
	case s.RunCellByCell != nil:
		var onStep lab.StepFunc
		if c := s.RunCellByCell.Capture; c != nil {
			onStep = func(ctx context.Context, _ int) error {
				return capture(ctx, t, c)
			}
		}
		return nb.RunCellByCell(ctx, onStep)
	case s.RunAll != nil:
		return nb.Run(ctx)
	case s.WaitForRun != nil:
		return nb.WaitForRun(ctx)
	case s.Save != nil:
		return nb.Save(ctx)
	case s.Close != nil:
		if !nb.Close(ctx, s.Close.Revert) {
			t.Logger().Warn("harness: notebook did not close cleanly")
		}
		return nil
	case s.Menu != nil:
		return l.Menu().ClickMenuItem(ctx, *s.Menu)
	case s.AcceptDialog != nil:
		return l.Dialog().Accept(ctx)
	case s.DismissDialog != nil:
		return l.Dialog().Dismiss(ctx)
	case s.Click != nil:
		return t.Page().Click(ctx, resolveTarget(nb, s.Click))
	case s.Hover != nil:
		return t.Page().Hover(ctx, resolveTarget(nb, s.Hover))
	case s.ClickCell != nil:
		return nb.ClickCell(ctx, *s.ClickCell)
	case s.Press != nil:
		loc := browser.Locator{}
		if s.Press.Target != nil {
			loc = resolveTarget(nb, s.Press.Target)
		}
		return t.Page().Press(ctx, loc, s.Press.Keys)
	case s.WaitFor != nil:
		return t.Page().WaitVisible(ctx, resolveTarget(nb, s.WaitFor))
	case s.AddStyle != nil:
		return t.Page().AddStyle(ctx, *s.AddStyle)
	case s.HideCellToolbar != nil:
		return t.Page().AddStyle(ctx, lab.HideCellToolbar)
	case s.Capture != nil:
		return capture(ctx, t, s.Capture)
	case s.ExpectOutput != nil:
		return expectOutput(ctx, t, s.ExpectOutput)
	case s.RestartAndRunAll != nil:
		return nb.RestartAndRunAll(ctx)
	case s.RestartKernel != nil:
		return nb.RestartKernel(ctx)
	case s.Repeat != nil:
		for i := 0; i < s.Repeat.Times; i++ {
			if err := runSteps(ctx, t, tmp, s.Repeat.Steps); err != nil {
				return fmt.Errorf("repeat %d: %w", i, err)
			}
		}
		return nil
	}
	return fmt.Errorf("harness: step has no action")
}

// resolveTarget turns a Target into a locator; nil or empty means the
// notebook panel.
func resolveTarget(nb *lab.Notebook, t *Target) browser.Locator {
	if t == nil {
		return nb.Panel()
	}

	var loc browser.Locator
	switch {
	case t.Cell != nil && t.Output:
		loc = nb.Output(*t.Cell)
	case t.Cell != nil:
		loc = nb.Cell(*t.Cell)
	case t.CSS != "" && t.InPanel:
		loc = nb.InPanel(t.CSS)
	case t.CSS != "":
		loc = browser.CSS(t.CSS)
	default:
		loc = nb.Panel()
	}

	if t.Text != "" {
		loc = loc.WithText(t.Text)
	}
	if t.Exact != "" {
		loc = loc.WithExactText(t.Exact)
	}
	if t.Nth != nil {
		loc = loc.At(*t.Nth)
	}
	return loc
}

func severity(soft bool) Severity {
	if soft {
		return Soft
	}
	return Hard
}

// capture takes the snapshot c describes and compares it to its baseline.
func capture(ctx context.Context, t *T, c *CaptureSpec) error {
	nb := t.Notebook()
	target := resolveTarget(nb, c.Target)

	var snap snapshot.Snapshot
	if c.Text {
		s, err := nb.CaptureText(ctx, target)
		if err != nil {
			return err
		}
		snap = snapshot.Text(c.Name, s)
	} else {
		img, err := nb.Capture(ctx, target)
		if err != nil {
			return err
		}
		snap = snapshot.Image(c.Name, img)
	}
	return t.CompareToBaseline(ctx, snap, "", severity(c.Soft))
}

func expectOutput(ctx context.Context, t *T, e *ExpectOutputSpec) error {
	out, err := t.Notebook().CellTextOutput(ctx, e.Cell)
	if err != nil {
		return err
	}
	sev := severity(e.Soft)

	var aerr error
	switch {
	case e.Equals != nil:
		aerr = t.ExpectEquals(out, *e.Equals, sev)
	case e.IntEquals != nil:
		aerr = t.ExpectInt(out, *e.IntEquals, sev)
	case e.FloatAbove != nil:
		aerr = t.ExpectFloatAbove(out, *e.FloatAbove, sev)
	}
	if aerr != nil {
		return fmt.Errorf("cell %d: %w", e.Cell, aerr)
	}
	return nil
}
