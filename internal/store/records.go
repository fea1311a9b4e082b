package store

import "time"

// Run is one execution of a suite.
type Run struct {
	ID        string    `json:"id"`
	Suite     string    `json:"suite"`
	SuitePath string    `json:"suite_path"`
	Started   time.Time `json:"started"`

	// Finished is zero while the run is in progress or if it was interrupted.
	Finished time.Time `json:"finished"`
	Pass     bool      `json:"pass"`

	SetupError    string `json:"setup_error,omitempty"`
	TeardownError string `json:"teardown_error,omitempty"`

	// Test counts, filled by ListRuns and GetRun.
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Done reports whether the run was finished.
func (r Run) Done() bool { return !r.Finished.IsZero() }

// TestRecord is a stored test result.
type TestRecord struct {
	Seq      int           `json:"seq"`
	Name     string        `json:"name"`
	Pass     bool          `json:"pass"`
	Skipped  bool          `json:"skipped,omitempty"`
	Code     string        `json:"code,omitempty"`
	Fatal    string        `json:"fatal,omitempty"`
	Errors   []string      `json:"errors,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	Snapshots []SnapshotRecord `json:"snapshots,omitempty"`
}

// SnapshotRecord is a stored baseline comparison.
type SnapshotRecord struct {
	Seq        int     `json:"seq"`
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

// RunDetail is a run with its test results in execution order.
type RunDetail struct {
	Run
	Tests []TestRecord `json:"tests"`
}
