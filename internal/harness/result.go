package harness

import (
	"time"

	"github.com/roach88/labshot/internal/snapshot"
)

// SnapshotResult is the outcome of one baseline comparison inside a test.
type SnapshotResult struct {
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Match      bool    `json:"match"`
	Soft       bool    `json:"soft"`
	DiffRatio  float64 `json:"diff_ratio,omitempty"`
	Diff       string  `json:"diff,omitempty"`
	Created    bool    `json:"created,omitempty"`
	Updated    bool    `json:"updated,omitempty"`
	ActualPath string  `json:"actual_path,omitempty"`
	DiffPath   string  `json:"diff_path,omitempty"`
}

func newSnapshotResult(c *snapshot.Comparison, sev Severity) SnapshotResult {
	return SnapshotResult{
		Name:       c.Name,
		Kind:       string(c.Kind),
		Match:      c.Match,
		Soft:       sev == Soft,
		DiffRatio:  c.DiffRatio,
		Diff:       c.Diff,
		Created:    c.Created,
		Updated:    c.Updated,
		ActualPath: c.ActualPath,
		DiffPath:   c.DiffPath,
	}
}

// TestResult is the outcome of one test.
type TestResult struct {
	Name string `json:"name"`

	// Pass is true when the test recorded no soft failures and did not abort.
	Pass bool `json:"pass"`

	// Skipped is set for tests that never started because the suite was
	// cancelled.
	Skipped bool `json:"skipped,omitempty"`

	// Errors lists soft failures in the order they were recorded.
	Errors []string `json:"errors,omitempty"`

	// Fatal is the error that aborted the test, if any.
	Fatal string `json:"fatal,omitempty"`

	// Code is the failure code of Fatal, if it carried one.
	Code string `json:"code,omitempty"`

	Snapshots []SnapshotResult `json:"snapshots,omitempty"`
	Started   time.Time        `json:"started"`
	Duration  time.Duration    `json:"duration"`
}

// SuiteResult is the outcome of a suite run.
type SuiteResult struct {
	Name string `json:"name"`

	// Pass is true when setup, every test and teardown succeeded.
	Pass bool `json:"pass"`

	Tests []TestResult `json:"tests"`

	// SetupError and TeardownError are suite-level failures.
	SetupError    string `json:"setup_error,omitempty"`
	TeardownError string `json:"teardown_error,omitempty"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
}

// NewSuiteResult creates a passing result with no tests.
func NewSuiteResult(name string, started time.Time) *SuiteResult {
	return &SuiteResult{Name: name, Pass: true, Tests: []TestResult{}, Started: started}
}

// AddTest appends a test result and folds its outcome into Pass.
func (r *SuiteResult) AddTest(t TestResult) {
	r.Tests = append(r.Tests, t)
	if !t.Pass && !t.Skipped {
		r.Pass = false
	}
}

// Counts returns the number of passed, failed and skipped tests.
func (r *SuiteResult) Counts() (passed, failed, skipped int) {
	for _, t := range r.Tests {
		switch {
		case t.Skipped:
			skipped++
		case t.Pass:
			passed++
		default:
			failed++
		}
	}
	return passed, failed, skipped
}
