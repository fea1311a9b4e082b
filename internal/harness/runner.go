package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/roach88/labshot/internal/failure"
	"github.com/roach88/labshot/internal/snapshot"
)

// DefaultTestTimeout applies to tests that set no timeout of their own.
const DefaultTestTimeout = 2 * time.Minute

// teardownTimeout bounds fixture cleanup, which runs even after the
// suite context is cancelled.
const teardownTimeout = time.Minute

// FixtureStore moves fixtures in and out of application storage;
// *contents.Client implements it.
type FixtureStore interface {
	Upload(ctx context.Context, localPath, dest string) error
	DeleteDirectory(ctx context.Context, dir string) error
}

// Clock supplies timestamps for results.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Recorder persists test results as they complete.
type Recorder interface {
	RecordTest(ctx context.Context, suite string, res TestResult) error
}

// Runner executes suites.
type Runner struct {
	Contents FixtureStore
	Sessions SessionFactory
	Baseline *snapshot.Baseline

	// Filter is a path.Match pattern on test names. Empty runs every test.
	Filter string

	// DefaultTimeout applies to tests without a timeout. Zero uses DefaultTestTimeout.
	DefaultTimeout time.Duration

	Logger   *slog.Logger
	Clock    Clock
	Recorder Recorder
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Clock == nil {
		return systemClock{}.Now()
	}
	return r.Clock.Now()
}

// Run executes the suite: it uploads the fixtures, runs every selected
// test serially in a fresh session and finally deletes the working
// directory. Teardown always runs, whatever happened before it.
//
// The returned error reports suite-level failures (setup, teardown or
// cancellation); test failures are only reported through the result.
func (r *Runner) Run(ctx context.Context, suite *Suite) (res *SuiteResult, err error) {
	log := r.logger().With("suite", suite.Name)
	res = NewSuiteResult(suite.Name, r.now())

	defer func() {
		if terr := r.teardown(ctx, suite, log); terr != nil {
			res.TeardownError = terr.Error()
			res.Pass = false
			err = errors.Join(err, terr)
		}
		res.Duration = r.now().Sub(res.Started)
	}()

	if err := r.setup(ctx, suite, log); err != nil {
		res.SetupError = err.Error()
		res.Pass = false
		return res, err
	}

	for _, test := range suite.Tests {
		if !r.selected(test.Name) {
			continue
		}
		if ctx.Err() != nil {
			res.AddTest(TestResult{Name: test.Name, Skipped: true})
			continue
		}

		tr := r.runTest(ctx, suite, test, log)
		res.AddTest(tr)
		if r.Recorder != nil {
			// The test that was running when ctx was cancelled still gets stored.
			if rerr := r.Recorder.RecordTest(context.WithoutCancel(ctx), suite.Name, tr); rerr != nil {
				log.Warn("harness: record test", "test", test.Name, "error", rerr)
			}
		}
	}

	if cerr := ctx.Err(); cerr != nil {
		res.Pass = false
		return res, failure.FromContext("suite", suite.Name, cerr)
	}
	return res, nil
}

func (r *Runner) selected(name string) bool {
	if r.Filter == "" {
		return true
	}
	ok, err := path.Match(r.Filter, name)
	return err == nil && ok
}

func (r *Runner) setup(ctx context.Context, suite *Suite, log *slog.Logger) error {
	if len(suite.Fixtures) == 0 {
		return nil
	}
	if r.Contents == nil {
		return fmt.Errorf("harness: suite %q has fixtures but no contents client", suite.Name)
	}
	for _, f := range suite.Fixtures {
		dest := path.Join(suite.TmpPath, f.Dest)
		if err := r.Contents.Upload(ctx, f.Source, dest); err != nil {
			log.Error("harness: upload fixture", "source", f.Source, "path", dest, "error", err)
			return fmt.Errorf("setup: %w", err)
		}
		log.Debug("harness: uploaded fixture", "path", dest)
	}
	return nil
}

func (r *Runner) teardown(ctx context.Context, suite *Suite, log *slog.Logger) error {
	if suite.TmpPath == "" || r.Contents == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
	defer cancel()

	if err := r.Contents.DeleteDirectory(ctx, suite.TmpPath); err != nil {
		log.Error("harness: teardown", "path", suite.TmpPath, "error", err)
		return fmt.Errorf("teardown: %w", err)
	}
	log.Debug("harness: removed working directory", "path", suite.TmpPath)
	return nil
}

func (r *Runner) runTest(ctx context.Context, suite *Suite, test Test, log *slog.Logger) TestResult {
	timeout := test.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTestTimeout
	}

	res := TestResult{Name: test.Name, Started: r.now()}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t, err := r.execute(tctx, suite, test, log)
	if t != nil {
		res.Errors = t.Errors()
		res.Snapshots = t.Snapshots()
	}
	if err != nil {
		if tctx.Err() != nil && failure.CodeOf(err) != failure.CodeTimeout {
			err = failure.Wrap(failure.CodeTimeout, "test", test.Name, err)
		}
		res.Fatal = err.Error()
		res.Code = string(failure.CodeOf(err))
	}
	res.Pass = res.Fatal == "" && len(res.Errors) == 0
	res.Duration = r.now().Sub(res.Started)

	switch {
	case res.Fatal != "":
		log.Error("harness: test aborted", "test", test.Name, "error", res.Fatal)
	case !res.Pass:
		log.Warn("harness: test failed", "test", test.Name, "failures", len(res.Errors))
	default:
		log.Info("harness: test passed", "test", test.Name, "duration", res.Duration)
	}
	return res
}

func (r *Runner) execute(ctx context.Context, suite *Suite, test Test, log *slog.Logger) (*T, error) {
	if r.Sessions == nil {
		return nil, fmt.Errorf("harness: no session factory")
	}
	sess, err := r.Sessions.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("harness: close session", "test", test.Name, "error", cerr)
		}
	}()

	t := newT(test.Name, sess, r.Baseline, log)
	if suite.BeforeEach != nil {
		if err := suite.BeforeEach(ctx, t); err != nil {
			return t, fmt.Errorf("before each: %w", err)
		}
	}
	if test.Fn == nil {
		return t, nil
	}
	return t, test.Fn(ctx, t)
}
