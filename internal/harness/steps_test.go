package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/labshot/internal/contents"
	"github.com/roach88/labshot/internal/failure"
	"github.com/roach88/labshot/internal/lab"
	"github.com/roach88/labshot/internal/testutil"
)

// runYAML loads body as a suite and runs it against fresh FakeJupyter
// sessions whose contents API already holds the notebook.
func runYAML(t *testing.T, body string) (*SuiteResult, *jupyterSessions, *Runner) {
	t.Helper()
	s, err := LoadSuite(writeSuite(t, body))
	require.NoError(t, err)

	r, _, sessions := newRunner(t)
	sessions.contents = existsAll{}
	res, err := r.Run(context.Background(), s)
	require.NoError(t, err)
	return res, sessions, r
}

type existsAll struct{}

func (existsAll) Exists(context.Context, string) (bool, error) { return true, nil }

func TestSteps_ExpectOutputHardAndSoft(t *testing.T) {
	res, _, _ := runYAML(t, `
name: outputs
tests:
  - name: soft then hard
    steps:
      - open: notebook-run-test/simple_notebook.ipynb
      - run_all: {}
      - expect_output: { cell: 5, int_equals: 5, soft: true }
      - expect_output: { cell: 6, float_above: 1.5 }
      - expect_output: { cell: 6, equals: "2.0" }
      - expect_output: { cell: 5, int_equals: 4 }
`)
	tr := res.Tests[0]
	assert.False(t, tr.Pass)
	require.Len(t, tr.Errors, 1)
	assert.Contains(t, tr.Errors[0], "expected 5, got 4")
	assert.Contains(t, tr.Fatal, "step 4: cell 6: output_equals")
}

func TestSteps_MissingElementIsHardNotFound(t *testing.T) {
	res, sessions, _ := runYAML(t, `
name: missing
tests:
  - name: click nothing
    steps:
      - click: { css: .jp-DoesNotExist }
      - add_style: ".never{}"
`)
	tr := res.Tests[0]
	assert.Equal(t, string(failure.CodeNotFound), tr.Code)
	assert.Empty(t, sessions.sessions()[0].Page.Styles())
}

func TestSteps_DismissDialogKeepsKernel(t *testing.T) {
	res, sessions, _ := runYAML(t, `
name: dialogs
tests:
  - name: dismiss restart
    steps:
      - open: notebook-run-test/simple_notebook.ipynb
      - menu: "Kernel>Restart Kernel…"
      - dismiss_dialog: {}
      - menu: "Kernel>Restart Kernel…"
      - accept_dialog: {}
`)
	require.True(t, res.Tests[0].Pass, res.Tests[0].Fatal)
	assert.Equal(t, 1, sessions.sessions()[0].Restarts())
}

func TestSteps_RepeatRunsNestedSteps(t *testing.T) {
	res, sessions, _ := runYAML(t, `
name: repeat
tests:
  - name: restart thrice
    steps:
      - open: notebook-run-test/simple_notebook.ipynb
      - repeat:
          times: 3
          steps:
            - restart_kernel: {}
`)
	require.True(t, res.Tests[0].Pass, res.Tests[0].Fatal)
	assert.Equal(t, 3, sessions.sessions()[0].Restarts())
}

func TestSteps_TextCaptureOfCellOutput(t *testing.T) {
	res, _, r := runYAML(t, `
name: text
tests:
  - name: capture output text
    steps:
      - open: notebook-run-test/simple_notebook.ipynb
      - run_all: {}
      - capture: { name: outputs/cell-5.txt, text: true, target: { cell: 5, output: true } }
`)
	require.True(t, res.Tests[0].Pass, res.Tests[0].Fatal)
	snaps := res.Tests[0].Snapshots
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Created)
	assert.Equal(t, "text", snaps[0].Kind)

	data, err := os.ReadFile(filepath.Join(r.Baseline.Dir, "outputs", "cell-5.txt"))
	require.NoError(t, err)
	assert.Equal(t, "4", string(data))
}

func TestSteps_PressAndWaitForPrompt(t *testing.T) {
	res, sessions, _ := runYAML(t, `
name: keyboard
tests:
  - name: shift enter
    steps:
      - open: notebook-run-test/simple_notebook.ipynb
      - click_cell: 0
      - press: { keys: Shift+Enter, target: {} }
      - press: { keys: Shift+Enter }
      - wait_for: { css: ".jp-Cell .jp-InputArea-prompt", in_panel: true, exact: "[2]" }
      - save: {}
`)
	require.True(t, res.Tests[0].Pass, res.Tests[0].Fatal)
	j := sessions.sessions()[0]
	assert.Equal(t, 1, j.Saves())
	assert.Contains(t, j.PanelText(), "[2]:")
	assert.Contains(t, j.PanelText(), "selected=2")
}

func TestSteps_RunCellByCellCapturesEachCell(t *testing.T) {
	res, _, _ := runYAML(t, `
name: cell by cell
tests:
  - name: steps
    steps:
      - open: notebook-run-test/simple_notebook.ipynb
      - run_cell_by_cell:
          capture: { name: "panel-{n}.png" }
`)
	require.True(t, res.Tests[0].Pass, res.Tests[0].Fatal)
	var names []string
	for _, s := range res.Tests[0].Snapshots {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"panel-0.png", "panel-1.png", "panel-2.png", "panel-3.png",
		"panel-4.png", "panel-5.png", "panel-6.png",
	}, names)
}

func TestSteps_CloseNeverFailsTheTest(t *testing.T) {
	res, sessions, _ := runYAML(t, `
name: close
tests:
  - name: close dirty
    steps:
      - open: notebook-run-test/simple_notebook.ipynb
      - run_all: {}
      - close: { revert: true }
      - close: {}
`)
	require.True(t, res.Tests[0].Pass, res.Tests[0].Fatal)
	assert.Empty(t, sessions.sessions()[0].OpenDocument())
}

// TestNotebookRunSuite runs the shipped suite end to end: fixtures go
// through the contents API, every test drives a fake JupyterLab, and the
// second run compares against the baselines recorded by the first.
func TestNotebookRunSuite(t *testing.T) {
	suite, err := LoadSuite(filepath.Join("..", "..", "suites", "notebook-run.yaml"))
	require.NoError(t, err)

	srv := testutil.NewContentsServer(t, "tok")
	client := contents.New(srv.URL, contents.WithToken("tok"), contents.WithLogger(discardLogger()))
	baseline := newBaseline(t, true)
	r := &Runner{
		Contents: client,
		Sessions: &jupyterSessions{notebooks: simpleNotebook, contents: client},
		Baseline: baseline,
		Logger:   discardLogger(),
	}

	res, err := r.Run(context.Background(), suite)
	require.NoError(t, err)
	for _, tr := range res.Tests {
		require.True(t, tr.Pass, "%s: fatal=%q errors=%v", tr.Name, tr.Fatal, tr.Errors)
	}
	assert.Empty(t, srv.Paths(), "working directory must be removed")

	for _, name := range []string{"notebook-panel-0.png", "notebook-panel-7.png", "restart-and-run.png"} {
		assert.FileExists(t, filepath.Join(baseline.Dir, name))
	}
	assert.NoFileExists(t, filepath.Join(baseline.Dir, "notebook-panel-8.png"))

	baseline.Update = false
	res, err = r.Run(context.Background(), suite)
	require.NoError(t, err)
	assert.True(t, res.Pass)
	for _, tr := range res.Tests {
		for _, s := range tr.Snapshots {
			assert.True(t, s.Match, s.Name)
			assert.False(t, s.Created, s.Name)
		}
	}
}

func TestSteps_HoverAndHideCellToolbar(t *testing.T) {
	res, sessions, _ := runYAML(t, `
name: toolbar
tests:
  - name: hide toolbar
    steps:
      - open: notebook-run-test/simple_notebook.ipynb
      - hide_cell_toolbar: {}
      - hover: { cell: 0 }
`)
	require.True(t, res.Tests[0].Pass, res.Tests[0].Fatal)
	page := sessions.sessions()[0].Page
	assert.Equal(t, []string{lab.HideCellToolbar}, page.Styles())
	assert.Contains(t, page.Actions(), "hover "+(&lab.Lab{}).Notebook().Cell(0).String())
}
