package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/failure"
	"github.com/roach88/labshot/internal/lab"
	"github.com/roach88/labshot/internal/snapshot"
)

// Severity decides whether a failed check aborts the test.
type Severity int

const (
	// Hard failures abort the test immediately.
	Hard Severity = iota

	// Soft failures are recorded and reported when the test ends.
	Soft
)

func (s Severity) String() string {
	if s == Soft {
		return "soft"
	}
	return "hard"
}

// AssertionError is returned by a failed hard expectation.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// T is handed to every test. It exposes the session and collects soft
// failures; hard failures are errors the test function returns.
type T struct {
	name     string
	session  *Session
	baseline *snapshot.Baseline
	namer    snapshot.Namer
	logger   *slog.Logger

	errors    []string
	snapshots []SnapshotResult
}

func newT(name string, s *Session, b *snapshot.Baseline, logger *slog.Logger) *T {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &T{name: name, session: s, baseline: b, logger: logger.With("test", name)}
}

// Name returns the test name.
func (t *T) Name() string { return t.name }

// Page returns the session's browser page.
func (t *T) Page() browser.Page { return t.session.Page }

// Lab returns the JupyterLab page objects for the session.
func (t *T) Lab() *lab.Lab { return t.session.Lab }

// Notebook is shorthand for t.Lab().Notebook().
func (t *T) Notebook() *lab.Notebook { return t.session.Lab.Notebook() }

// Logger returns the test's logger.
func (t *T) Logger() *slog.Logger { return t.logger }

// Errorf records a soft failure. The test keeps running.
func (t *T) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	t.logger.Warn("harness: soft failure", "error", msg)
	t.errors = append(t.errors, msg)
}

// Fatalf returns an error for the test function to return, aborting the test:
//
//	return t.Fatalf("cell %d has no output", i)
func (t *T) Fatalf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}

// Failed reports whether a soft failure has been recorded.
func (t *T) Failed() bool { return len(t.errors) > 0 }

// Errors returns the soft failures recorded so far.
func (t *T) Errors() []string { return append([]string(nil), t.errors...) }

// Snapshots returns the comparisons made so far.
func (t *T) Snapshots() []SnapshotResult { return append([]SnapshotResult(nil), t.snapshots...) }

// fail applies sev to err: soft errors are recorded and swallowed.
func (t *T) fail(err error, sev Severity) error {
	if sev == Soft {
		t.Errorf("%v", err)
		return nil
	}
	return err
}

// CompareToBaseline compares snap to its committed baseline under name
// (snap.Name when name is empty). A {n} in the name expands to a per-test
// counter. A soft mismatch is recorded and nil is returned; a hard
// mismatch returns a SNAPSHOT_MISMATCH error. I/O problems are always hard.
func (t *T) CompareToBaseline(ctx context.Context, snap snapshot.Snapshot, name string, sev Severity) error {
	if err := ctx.Err(); err != nil {
		return failure.FromContext("compare", name, err)
	}
	if t.baseline == nil {
		return fmt.Errorf("harness: no baseline directory configured")
	}
	if name == "" {
		name = snap.Name
	}
	snap.Name = t.namer.Next(name)

	cmp, err := t.baseline.Compare(snap)
	if err != nil {
		return err
	}
	t.snapshots = append(t.snapshots, newSnapshotResult(cmp, sev))
	t.logger.Debug("harness: compared snapshot", "name", cmp.Name, "match", cmp.Match, "severity", sev)
	return t.fail(cmp.Err(), sev)
}

// ExpectEquals checks that the joined cell output equals want, ignoring
// surrounding whitespace.
func (t *T) ExpectEquals(output []string, want string, sev Severity) error {
	got := strings.TrimSpace(strings.Join(output, "\n"))
	if got == strings.TrimSpace(want) {
		return nil
	}
	return t.fail(&AssertionError{Type: "output_equals", Expected: strconv.Quote(want), Actual: strconv.Quote(got)}, sev)
}

// ExpectInt checks that the first output parses as the integer want.
func (t *T) ExpectInt(output []string, want int, sev Severity) error {
	s, err := firstOutput(output)
	if err != nil {
		return t.fail(&AssertionError{Type: "output_int", Expected: strconv.Itoa(want), Actual: err.Error()}, sev)
	}
	got, err := strconv.Atoi(s)
	if err != nil {
		return t.fail(&AssertionError{Type: "output_int", Expected: strconv.Itoa(want), Actual: strconv.Quote(s)}, sev)
	}
	if got != want {
		return t.fail(&AssertionError{Type: "output_int", Expected: strconv.Itoa(want), Actual: strconv.Itoa(got)}, sev)
	}
	return nil
}

// ExpectFloatAbove checks that the first output parses as a float
// strictly greater than threshold.
func (t *T) ExpectFloatAbove(output []string, threshold float64, sev Severity) error {
	want := "> " + strconv.FormatFloat(threshold, 'g', -1, 64)
	s, err := firstOutput(output)
	if err != nil {
		return t.fail(&AssertionError{Type: "output_float", Expected: want, Actual: err.Error()}, sev)
	}
	got, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return t.fail(&AssertionError{Type: "output_float", Expected: want, Actual: strconv.Quote(s)}, sev)
	}
	if !(got > threshold) {
		return t.fail(&AssertionError{Type: "output_float", Expected: want, Actual: s}, sev)
	}
	return nil
}

func firstOutput(output []string) (string, error) {
	if len(output) == 0 {
		return "", fmt.Errorf("no output")
	}
	return strings.TrimSpace(output[0]), nil
}
