package harness

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/snapshot"
)

//go:embed schema.cue
var suiteSchema string

// SuiteFile is the on-disk form of a declarative suite.
type SuiteFile struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	TmpPath     string        `yaml:"tmp_path,omitempty"`
	Fixtures    []FixtureSpec `yaml:"fixtures,omitempty"`
	BeforeEach  []Step        `yaml:"before_each,omitempty"`
	Tests       []TestSpec    `yaml:"tests"`

	// dir is the directory of the suite file; fixture sources resolve against it.
	dir string
}

// FixtureSpec names a local file to upload. Dest defaults to the base name
// of Source.
type FixtureSpec struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest,omitempty"`
}

// TestSpec is a named list of steps.
type TestSpec struct {
	Name    string `yaml:"name"`
	Timeout string `yaml:"timeout,omitempty"`
	Steps   []Step `yaml:"steps"`
}

// Empty is the argument of steps that take none: "- save: {}".
type Empty struct{}

// Target addresses an element. The zero Target is the notebook panel.
type Target struct {
	// CSS selects elements; with InPanel it is scoped to the active notebook.
	CSS     string `yaml:"css,omitempty"`
	InPanel bool   `yaml:"in_panel,omitempty"`

	// Text is a regular expression on inner text; Exact a literal substring.
	Text  string `yaml:"text,omitempty"`
	Exact string `yaml:"exact,omitempty"`
	Nth   *int   `yaml:"nth,omitempty"`

	// Cell addresses a notebook cell, or its outputs when Output is set.
	Cell   *int `yaml:"cell,omitempty"`
	Output bool `yaml:"output,omitempty"`
}

// CaptureSpec describes a snapshot to take and compare.
type CaptureSpec struct {
	Name   string  `yaml:"name"`
	Soft   bool    `yaml:"soft,omitempty"`
	Text   bool    `yaml:"text,omitempty"`
	Target *Target `yaml:"target,omitempty"`
}

// ExpectOutputSpec checks the text output of a cell. Exactly one of
// Equals, IntEquals and FloatAbove is set.
type ExpectOutputSpec struct {
	Cell       int      `yaml:"cell"`
	Equals     *string  `yaml:"equals,omitempty"`
	IntEquals  *int     `yaml:"int_equals,omitempty"`
	FloatAbove *float64 `yaml:"float_above,omitempty"`
	Soft       bool     `yaml:"soft,omitempty"`
}

// RunCellByCellSpec optionally captures after every cell.
type RunCellByCellSpec struct {
	Capture *CaptureSpec `yaml:"capture,omitempty"`
}

// CloseSpec closes the active notebook.
type CloseSpec struct {
	Revert bool `yaml:"revert,omitempty"`
}

// PressSpec sends a key combination, to Target when set or to the
// focused element otherwise.
type PressSpec struct {
	Keys   string  `yaml:"keys"`
	Target *Target `yaml:"target,omitempty"`
}

// RepeatSpec runs Steps Times times.
type RepeatSpec struct {
	Times int    `yaml:"times"`
	Steps []Step `yaml:"steps"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	Goto             *Empty             `yaml:"goto,omitempty"`
	OpenDirectory    *string            `yaml:"open_directory,omitempty"`
	Open             *string            `yaml:"open,omitempty"`
	Activate         *string            `yaml:"activate,omitempty"`
	RunCellByCell    *RunCellByCellSpec `yaml:"run_cell_by_cell,omitempty"`
	RunAll           *Empty             `yaml:"run_all,omitempty"`
	WaitForRun       *Empty             `yaml:"wait_for_run,omitempty"`
	Save             *Empty             `yaml:"save,omitempty"`
	Close            *CloseSpec         `yaml:"close,omitempty"`
	Menu             *string            `yaml:"menu,omitempty"`
	AcceptDialog     *Empty             `yaml:"accept_dialog,omitempty"`
	DismissDialog    *Empty             `yaml:"dismiss_dialog,omitempty"`
	Click            *Target            `yaml:"click,omitempty"`
	Hover            *Target            `yaml:"hover,omitempty"`
	ClickCell        *int               `yaml:"click_cell,omitempty"`
	Press            *PressSpec         `yaml:"press,omitempty"`
	WaitFor          *Target            `yaml:"wait_for,omitempty"`
	AddStyle         *string            `yaml:"add_style,omitempty"`
	HideCellToolbar  *Empty             `yaml:"hide_cell_toolbar,omitempty"`
	Capture          *CaptureSpec       `yaml:"capture,omitempty"`
	ExpectOutput     *ExpectOutputSpec  `yaml:"expect_output,omitempty"`
	RestartAndRunAll *Empty             `yaml:"restart_and_run_all,omitempty"`
	RestartKernel    *Empty             `yaml:"restart_kernel,omitempty"`
	Repeat           *RepeatSpec        `yaml:"repeat,omitempty"`
}

// kinds returns the names of the actions set on the step.
func (s *Step) kinds() []string {
	var k []string
	add := func(set bool, name string) {
		if set {
			k = append(k, name)
		}
	}
	add(s.Goto != nil, "goto")
	add(s.OpenDirectory != nil, "open_directory")
	add(s.Open != nil, "open")
	add(s.Activate != nil, "activate")
	add(s.RunCellByCell != nil, "run_cell_by_cell")
	add(s.RunAll != nil, "run_all")
	add(s.WaitForRun != nil, "wait_for_run")
	add(s.Save != nil, "save")
	add(s.Close != nil, "close")
	add(s.Menu != nil, "menu")
	add(s.AcceptDialog != nil, "accept_dialog")
	add(s.DismissDialog != nil, "dismiss_dialog")
	add(s.Click != nil, "click")
	add(s.Hover != nil, "hover")
	add(s.ClickCell != nil, "click_cell")
	add(s.Press != nil, "press")
	add(s.WaitFor != nil, "wait_for")
	add(s.AddStyle != nil, "add_style")
	add(s.HideCellToolbar != nil, "hide_cell_toolbar")
	add(s.Capture != nil, "capture")
	add(s.ExpectOutput != nil, "expect_output")
	add(s.RestartAndRunAll != nil, "restart_and_run_all")
	add(s.RestartKernel != nil, "restart_kernel")
	add(s.Repeat != nil, "repeat")
	return k
}

// Kind returns the step's action name.
func (s *Step) Kind() string {
	if k := s.kinds(); len(k) == 1 {
		return k[0]
	}
	return ""
}

// LoadSuite reads a suite file, validates it and builds a runnable Suite.
func LoadSuite(path string) (*Suite, error) {
	f, err := ParseSuiteFile(path)
	if err != nil {
		return nil, err
	}
	return f.Build()
}

// ParseSuiteFile reads and validates a suite file without building it.
// Validation happens in three passes: the YAML is checked against the
// embedded CUE schema, decoded strictly (unknown fields are errors), and
// then checked for cross-field rules the schema cannot express.
func ParseSuiteFile(path string) (*SuiteFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	if err := validateSchema(path, data); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}

	var f SuiteFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	f.dir = filepath.Dir(abs)

	if err := validateSuite(&f); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}
	return &f, nil
}

// validateSchema unifies the YAML document with #Suite.
func validateSchema(filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(suiteSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return formatCUEError(err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Suite")).Unify(doc)
	return formatCUEError(v.Validate(cue.Concrete(true)))
}

// formatCUEError reduces a CUE error list to its first error, prefixed
// with its source position when one is known.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	format, args := first.Msg()
	msg := fmt.Sprintf(format, args...)
	if path := first.Path(); len(path) > 0 {
		msg = strings.Join(path, ".") + ": " + msg
	}
	if pos := cueerrors.Positions(first); len(pos) > 0 {
		return fmt.Errorf("%s: %s", pos[0], msg)
	}
	return fmt.Errorf("%s", msg)
}

// tmpPlaceholder in step strings expands to the suite's working directory.
const tmpPlaceholder = "{tmp}"

func validateSuite(f *SuiteFile) error {
	if f.Name == "" {
		return fmt.Errorf("name is required")
	}
	if f.TmpPath != "" {
		if err := validateStoragePath(f.TmpPath); err != nil {
			return fmt.Errorf("tmp_path: %w", err)
		}
	}
	if len(f.Fixtures) > 0 && f.TmpPath == "" {
		return fmt.Errorf("fixtures require tmp_path")
	}

	seen := map[string]bool{}
	for i, fx := range f.Fixtures {
		src := fx.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(f.dir, src)
		}
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("fixtures[%d]: source not found: %s", i, fx.Source)
		}
		dest := fx.Dest
		if dest == "" {
			dest = filepath.Base(fx.Source)
		}
		if err := validateStoragePath(dest); err != nil {
			return fmt.Errorf("fixtures[%d].dest: %w", i, err)
		}
		if seen[dest] {
			return fmt.Errorf("fixtures[%d]: duplicate destination %q", i, dest)
		}
		seen[dest] = true
	}

	if err := validateSteps("before_each", f.BeforeEach); err != nil {
		return err
	}

	if len(f.Tests) == 0 {
		return fmt.Errorf("tests list is required and must be non-empty")
	}
	names := map[string]bool{}
	for i, t := range f.Tests {
		where := fmt.Sprintf("tests[%d]", i)
		if t.Name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		if names[t.Name] {
			return fmt.Errorf("%s: duplicate test name %q", where, t.Name)
		}
		names[t.Name] = true
		if t.Timeout != "" {
			d, err := time.ParseDuration(t.Timeout)
			if err != nil || d <= 0 {
				return fmt.Errorf("%s.timeout: invalid duration %q", where, t.Timeout)
			}
		}
		if len(t.Steps) == 0 {
			return fmt.Errorf("%s: steps list is required and must be non-empty", where)
		}
		if err := validateSteps(where+".steps", t.Steps); err != nil {
			return err
		}
	}
	return nil
}

func validateStoragePath(p string) error {
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return fmt.Errorf("%q must be relative", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("%q must not contain ..", p)
		}
	}
	return nil
}

func validateSteps(where string, steps []Step) error {
	for i := range steps {
		if err := validateStep(fmt.Sprintf("%s[%d]", where, i), &steps[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(where string, s *Step) error {
	kinds := s.kinds()
	switch len(kinds) {
	case 0:
		return fmt.Errorf("%s: no action", where)
	case 1:
	default:
		return fmt.Errorf("%s: one action per step, got %s", where, strings.Join(kinds, ", "))
	}

	switch {
	case s.Menu != nil:
		parts := strings.Split(*s.Menu, ">")
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("%s.menu: empty label in %q", where, *s.Menu)
			}
		}
	case s.Open != nil:
		if strings.TrimSpace(*s.Open) == "" {
			return fmt.Errorf("%s.open: path is required", where)
		}
	case s.Click != nil:
		return validateTarget(where+".click", s.Click)
	case s.Hover != nil:
		return validateTarget(where+".hover", s.Hover)
	case s.WaitFor != nil:
		return validateTarget(where+".wait_for", s.WaitFor)
	case s.Press != nil:
		if _, err := browser.ParseCombo(s.Press.Keys); err != nil {
			return fmt.Errorf("%s.press: %w", where, err)
		}
		if s.Press.Target != nil {
			return validateTarget(where+".press.target", s.Press.Target)
		}
	case s.Capture != nil:
		return validateCapture(where+".capture", s.Capture)
	case s.RunCellByCell != nil:
		if s.RunCellByCell.Capture != nil {
			return validateCapture(where+".run_cell_by_cell.capture", s.RunCellByCell.Capture)
		}
	case s.ExpectOutput != nil:
		e := s.ExpectOutput
		n := 0
		for _, set := range []bool{e.Equals != nil, e.IntEquals != nil, e.FloatAbove != nil} {
			if set {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("%s.expect_output: exactly one of equals, int_equals, float_above is required", where)
		}
	case s.Repeat != nil:
		if s.Repeat.Times < 1 {
			return fmt.Errorf("%s.repeat: times must be at least 1", where)
		}
		if len(s.Repeat.Steps) == 0 {
			return fmt.Errorf("%s.repeat: steps list is required and must be non-empty", where)
		}
		return validateSteps(where+".repeat.steps", s.Repeat.Steps)
	}
	return nil
}

func validateCapture(where string, c *CaptureSpec) error {
	if err := snapshot.ValidateName(strings.ReplaceAll(c.Name, "{n}", "0")); err != nil {
		return fmt.Errorf("%s: %w", where, err)
	}
	if c.Target != nil {
		return validateTarget(where+".target", c.Target)
	}
	return nil
}

func validateTarget(where string, t *Target) error {
	if t.Cell != nil && t.CSS != "" {
		return fmt.Errorf("%s: css and cell are exclusive", where)
	}
	if t.Output && t.Cell == nil {
		return fmt.Errorf("%s: output requires cell", where)
	}
	if t.Text != "" && t.Exact != "" {
		return fmt.Errorf("%s: text and exact are exclusive", where)
	}
	if t.Text != "" {
		if _, err := regexp.Compile(t.Text); err != nil {
			return fmt.Errorf("%s.text: %w", where, err)
		}
	}
	return nil
}

// Build turns the file into a runnable Suite.
func (f *SuiteFile) Build() (*Suite, error) {
	s := &Suite{Name: f.Name, TmpPath: f.TmpPath}

	for _, fx := range f.Fixtures {
		src := fx.Source
		if !filepath.IsAbs(src) {
			src = filepath.Join(f.dir, src)
		}
		dest := fx.Dest
		if dest == "" {
			dest = filepath.Base(fx.Source)
		}
		s.Fixtures = append(s.Fixtures, Fixture{Source: src, Dest: path.Clean(dest)})
	}

	if len(f.BeforeEach) > 0 {
		steps := f.BeforeEach
		s.BeforeEach = func(ctx context.Context, t *T) error {
			return runSteps(ctx, t, f.TmpPath, steps)
		}
	}

	for _, ts := range f.Tests {
		var timeout time.Duration
		if ts.Timeout != "" {
			d, err := time.ParseDuration(ts.Timeout)
			if err != nil {
				return nil, fmt.Errorf("test %q: %w", ts.Name, err)
			}
			timeout = d
		}
		steps := ts.Steps
		s.Tests = append(s.Tests, Test{
			Name:    ts.Name,
			Timeout: timeout,
			Fn: func(ctx context.Context, t *T) error {
				return runSteps(ctx, t, f.TmpPath, steps)
			},
		})
	}
	return s, nil
}
