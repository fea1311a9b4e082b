package lab

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/failure"
	"github.com/roach88/labshot/internal/testutil"
)

const nbPath = "notebook-run-test/simple_notebook.ipynb"

type fakeContents map[string]bool

func (f fakeContents) Exists(_ context.Context, p string) (bool, error) {
	return f[p], nil
}

func newLab(t *testing.T) (*Lab, *testutil.FakeJupyter) {
	t.Helper()
	j := testutil.NewFakeJupyter(map[string][]string{
		nbPath: {"", "", "", "", "", "4", "1.7"},
	})
	l := &Lab{
		Page:         j.Page,
		Contents:     fakeContents{nbPath: true},
		BaseURL:      "http://localhost:8888/",
		Token:        "abc",
		PollInterval: time.Millisecond,
	}
	return l, j
}

func openNotebook(t *testing.T, l *Lab) *Notebook {
	t.Helper()
	nb := l.Notebook()
	require.NoError(t, nb.OpenByPath(context.Background(), nbPath))
	return nb
}

func TestGoto(t *testing.T) {
	l, j := newLab(t)
	require.NoError(t, l.Goto(context.Background()))
	assert.Equal(t, "http://localhost:8888/lab?token=abc", j.Page.URL())
}

func TestOpenDirectoryWalksSegments(t *testing.T) {
	l, j := newLab(t)
	require.NoError(t, l.FileBrowser().OpenDirectory(context.Background(), "notebook-run-test"))
	assert.Equal(t, []string{"notebook-run-test"}, j.Page.TextsOf(selBreadCrumbItem))
	assert.Equal(t, []string{"simple_notebook.ipynb"}, j.Page.TextsOf(selDirItemText))
}

func TestOpenDirectoryMissing(t *testing.T) {
	l, _ := newLab(t)
	err := l.FileBrowser().OpenDirectory(context.Background(), "elsewhere")
	require.Error(t, err)
	assert.True(t, failure.IsNotFound(err))
}

func TestOpenByPath(t *testing.T) {
	l, j := newLab(t)
	nb := openNotebook(t, l)

	assert.Equal(t, nbPath, j.OpenDocument())
	n, err := nb.CellCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestOpenByPathMissingDocument(t *testing.T) {
	l, j := newLab(t)
	err := l.Notebook().OpenByPath(context.Background(), "notebook-run-test/missing.ipynb")
	require.Error(t, err)
	assert.True(t, failure.IsNotFound(err))
	assert.Empty(t, j.Page.Actions(), "UI must not be touched")
}

func TestActivate(t *testing.T) {
	l, _ := newLab(t)
	nb := openNotebook(t, l)
	require.NoError(t, nb.Activate(context.Background(), "simple_notebook.ipynb"))

	err := nb.Activate(context.Background(), "other.ipynb")
	assert.True(t, failure.IsNotFound(err))
}

func TestRunCellByCellCallsStepAfterEachCell(t *testing.T) {
	l, j := newLab(t)
	nb := openNotebook(t, l)
	ctx := context.Background()

	var steps []int
	var states []string
	err := nb.RunCellByCell(ctx, func(_ context.Context, i int) error {
		steps = append(steps, i)
		states = append(states, j.PanelText())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, steps)
	// Cell i has run, cell i+1 has not.
	assert.Contains(t, states[0], "[1]:")
	assert.NotContains(t, states[0], "[2]:")
	assert.Contains(t, states[6], "[7]:")

	out, err := nb.CellTextOutput(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, out)
}

func TestRunCellByCellStopsOnStepError(t *testing.T) {
	l, _ := newLab(t)
	nb := openNotebook(t, l)

	boom := failure.Rejected("capture", "x", assert.AnError)
	var steps int
	err := nb.RunCellByCell(context.Background(), func(context.Context, int) error {
		steps++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, steps)
}

func TestRunAllFromMenu(t *testing.T) {
	l, _ := newLab(t)
	nb := openNotebook(t, l)
	ctx := context.Background()

	require.NoError(t, nb.Run(ctx))

	out, err := nb.CellTextOutput(ctx, 6)
	require.NoError(t, err)
	require.Len(t, out, 1)
	v, err := strconv.ParseFloat(out[0], 64)
	require.NoError(t, err)
	assert.Greater(t, v, 1.5)
}

func TestWaitForRunTimesOut(t *testing.T) {
	l, j := newLab(t)
	nb := openNotebook(t, l)
	j.KeepBusy(true)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := nb.Run(ctx)
	require.Error(t, err)
	assert.True(t, failure.IsTimeout(err))
}

func TestMenuItemLabelsIgnoreEllipsis(t *testing.T) {
	l, j := newLab(t)
	openNotebook(t, l)
	ctx := context.Background()

	require.NoError(t, l.Menu().ClickMenuItem(ctx, "Kernel>Restart Kernel..."))
	require.NoError(t, l.Dialog().Accept(ctx))
	assert.Equal(t, 1, j.Restarts())
}

func TestMenuItemMissingClosesMenu(t *testing.T) {
	l, j := newLab(t)
	err := l.Menu().ClickMenuItem(context.Background(), "Kernel>Shut Down Everything")
	require.Error(t, err)
	assert.True(t, failure.IsNotFound(err))
	assert.Equal(t, "press Escape", j.Page.Actions()[len(j.Page.Actions())-1])
}

func TestMenuPathValidation(t *testing.T) {
	l, _ := newLab(t)
	assert.Error(t, l.Menu().ClickMenuItem(context.Background(), "Kernel"))
	assert.Error(t, l.Menu().ClickMenuItem(context.Background(), "Kernel>"))
}

func TestDialogAcceptWithoutDialog(t *testing.T) {
	l, _ := newLab(t)
	err := l.Dialog().Accept(context.Background())
	assert.True(t, failure.IsNotFound(err))
}

func TestSaveClearsDirtyMarker(t *testing.T) {
	l, j := newLab(t)
	nb := openNotebook(t, l)
	ctx := context.Background()

	require.NoError(t, nb.RunCell(ctx, 0))
	assert.NotEmpty(t, j.Page.TextsOf(selDirtyTab))

	require.NoError(t, nb.Save(ctx))
	assert.Empty(t, j.Page.TextsOf(selDirtyTab))
	assert.Equal(t, 1, j.Saves())
}

func TestCloseNeverFails(t *testing.T) {
	ctx := context.Background()

	t.Run("clean", func(t *testing.T) {
		l, j := newLab(t)
		nb := openNotebook(t, l)
		assert.True(t, nb.Close(ctx, true))
		assert.Empty(t, j.OpenDocument())
	})

	t.Run("dirty with revert", func(t *testing.T) {
		l, j := newLab(t)
		nb := openNotebook(t, l)
		j.MarkDirty()
		assert.True(t, nb.Close(ctx, true))
		assert.Empty(t, j.OpenDocument())
		assert.Contains(t, j.Page.Actions(), "click "+selDialogWarn)
	})

	t.Run("dirty with late dialog", func(t *testing.T) {
		l, j := newLab(t)
		nb := openNotebook(t, l)
		j.MarkDirty()
		j.SlowCloseDialog(20 * time.Millisecond)
		assert.True(t, nb.Close(ctx, true))
		assert.Empty(t, j.OpenDocument())
		assert.Empty(t, j.Page.TextsOf(selDialog))
		assert.Contains(t, j.Page.Actions(), "click "+selDialogWarn)
	})

	t.Run("nothing open", func(t *testing.T) {
		l, _ := newLab(t)
		assert.False(t, l.Notebook().Close(ctx, true))
	})
}

func TestCellTextOutputMissingCell(t *testing.T) {
	l, _ := newLab(t)
	nb := openNotebook(t, l)
	_, err := nb.CellTextOutput(context.Background(), 42)
	assert.True(t, failure.IsNotFound(err))
}

func TestRestartStrategiesReachSameState(t *testing.T) {
	l, j := newLab(t)
	nb := openNotebook(t, l)
	ctx := context.Background()

	capture := func() []byte {
		require.NoError(t, nb.ClickCell(ctx, 0))
		img, err := nb.Capture(ctx, browser.Locator{})
		require.NoError(t, err)
		return img
	}

	require.NoError(t, nb.RestartAndRunAll(ctx))
	first := capture()

	require.NoError(t, nb.RestartKernel(ctx))
	require.NoError(t, nb.Run(ctx))
	assert.Equal(t, first, capture(), "restart + run all")

	require.NoError(t, nb.RestartKernel(ctx))
	require.NoError(t, nb.RunCellByCell(ctx, nil))
	assert.Equal(t, first, capture(), "restart + cell by cell")

	require.NoError(t, nb.RestartKernel(ctx))
	for i := 0; i < 6; i++ {
		require.NoError(t, j.Page.Press(ctx, nb.Panel(), "Shift+Enter"))
	}
	require.NoError(t, j.Page.Press(ctx, nb.Panel(), "Control+Enter"))
	require.NoError(t, j.Page.WaitVisible(ctx, browser.CSS(selAllPrompts).WithExactText("[7]")))
	assert.Equal(t, first, capture(), "restart + keyboard")

	assert.Equal(t, 4, j.Restarts())
}

func TestCaptureTextWaitsForTarget(t *testing.T) {
	l, _ := newLab(t)
	nb := openNotebook(t, l)
	ctx := context.Background()
	require.NoError(t, nb.Run(ctx))

	s, err := nb.CaptureText(ctx, nb.Output(5).At(0))
	require.NoError(t, err)
	assert.Equal(t, "4", s)
}

func TestLabelText(t *testing.T) {
	re := labelText("Restart Kernel…")
	l := browser.CSS("x").WithText(re)
	assert.Equal(t, []int{0, 1}, l.Filter([]string{"Restart Kernel…", "Restart Kernel..."}))
	assert.Nil(t, l.Filter([]string{"Restart Kernel and Run All Cells…"}))
}
