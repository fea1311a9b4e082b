package cli

import (
	"context"
	"log/slog"

	"github.com/roach88/labshot/internal/harness"
	"github.com/roach88/labshot/internal/store"
)

// runHistory records one suite run in the history database. It implements
// harness.Recorder so tests are stored as soon as they finish; an
// interrupted run keeps the tests that completed.
type runHistory struct {
	st    *store.Store
	runID string
}

func openRunHistory(ctx context.Context, opts *RunOptions, suite, suitePath string) (*runHistory, error) {
	var storeOpts []store.Option
	if opts.IDs != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.IDs))
	}
	if opts.Clock != nil {
		storeOpts = append(storeOpts, store.WithClock(opts.Clock))
	}

	st, err := store.Open(opts.Database, storeOpts...)
	if err != nil {
		return nil, err
	}
	runID, err := st.OpenRun(ctx, suite, suitePath)
	if err != nil {
		st.Close()
		return nil, err
	}
	return &runHistory{st: st, runID: runID}, nil
}

func (h *runHistory) RecordTest(ctx context.Context, _ string, res harness.TestResult) error {
	_, err := h.st.RecordTest(ctx, h.runID, testRecord(res))
	return err
}

// finish stores the tests that never started and the suite outcome. It
// runs after the suite context may have been cancelled, so it does not
// inherit cancellation.
func (h *runHistory) finish(ctx context.Context, res *harness.SuiteResult) error {
	ctx = context.WithoutCancel(ctx)
	for _, t := range res.Tests {
		if !t.Skipped {
			continue
		}
		if _, err := h.st.RecordTest(ctx, h.runID, testRecord(t)); err != nil {
			return err
		}
	}
	return h.st.FinishRun(ctx, h.runID, res.Pass, res.SetupError, res.TeardownError)
}

func (h *runHistory) close(log *slog.Logger) {
	if err := h.st.Close(); err != nil {
		log.Error("error closing database", "error", err)
	}
}

func testRecord(res harness.TestResult) store.TestRecord {
	rec := store.TestRecord{
		Name:     res.Name,
		Pass:     res.Pass,
		Skipped:  res.Skipped,
		Code:     res.Code,
		Fatal:    res.Fatal,
		Errors:   res.Errors,
		Started:  res.Started,
		Duration: res.Duration,
	}
	for _, s := range res.Snapshots {
		rec.Snapshots = append(rec.Snapshots, store.SnapshotRecord{
			Name:       s.Name,
			Kind:       s.Kind,
			Match:      s.Match,
			Soft:       s.Soft,
			DiffRatio:  s.DiffRatio,
			Diff:       s.Diff,
			Created:    s.Created,
			Updated:    s.Updated,
			ActualPath: s.ActualPath,
			DiffPath:   s.DiffPath,
		})
	}
	return rec
}
