package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/labshot/internal/browser"
	"github.com/roach88/labshot/internal/contents"
	"github.com/roach88/labshot/internal/harness"
	"github.com/roach88/labshot/internal/snapshot"
	"github.com/roach88/labshot/internal/store"
)

// SessionOpener builds the session factory for a run. The returned close
// function releases whatever the factory holds (the browser, usually).
type SessionOpener func(ctx context.Context, cfg SessionConfig) (harness.SessionFactory, func() error, error)

// SessionConfig is what a SessionOpener needs to reach the application.
type SessionConfig struct {
	BaseURL       string
	Token         string
	BrowserURL    string
	Headful       bool
	Stealth       bool
	ActionTimeout time.Duration
	Contents      *contents.Client
	Logger        *slog.Logger
}

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	BaseURL       string
	Token         string
	BrowserURL    string
	Baselines     string
	Update        bool
	Filter        string
	Database      string
	Headful       bool
	Stealth       bool
	Threshold     uint8
	MaxDiff       float64
	Timeout       time.Duration
	ActionTimeout time.Duration

	// OpenSessions allows overriding how sessions are opened (for testing).
	// If nil, sessions are browser tabs from a launched or remote Chrome.
	OpenSessions SessionOpener

	// Clock and IDs override timestamps and run IDs (for testing).
	Clock harness.Clock
	IDs   store.IDGenerator
}

// RunReport is the payload of the run command.
type RunReport struct {
	Suite   string               `json:"suite"`
	Path    string               `json:"path"`
	RunID   string               `json:"run_id,omitempty"`
	Passed  int                  `json:"passed"`
	Failed  int                  `json:"failed"`
	Skipped int                  `json:"skipped"`
	Result  *harness.SuiteResult `json:"result"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <suite.yaml>",
		Short: "Run a test suite against JupyterLab",
		Long: `Run every test of a suite file against a running JupyterLab.

Fixtures are uploaded into the suite's working directory through the
contents API before the first test and the directory is deleted after the
last one, whatever the outcome. Each test gets a fresh browser tab.
Snapshots are compared against the baseline directory; mismatching
captures and diff images are written to <baselines>/_failures.

Exit codes: 0 when every test passed, 1 when a test, setup or teardown
failed, 2 on command errors.

Example:
  labshot run suites/notebook-run.yaml --base-url http://localhost:8888 --token $TOKEN
  labshot run suites/notebook-run.yaml --update
  labshot run suites/notebook-run.yaml --filter 'Check*' --db labshot.db`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.BaseURL = flagOrEnv(cmd, "base-url", EnvBaseURL, opts.BaseURL)
			opts.Token = flagOrEnv(cmd, "token", EnvToken, opts.Token)
			opts.BrowserURL = flagOrEnv(cmd, "browser-url", EnvBrowserURL, opts.BrowserURL)
			opts.Database = flagOrEnv(cmd, "db", EnvDatabase, opts.Database)
			return runSuite(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "http://localhost:8888", "JupyterLab server root (env "+EnvBaseURL+")")
	cmd.Flags().StringVar(&opts.Token, "token", "", "JupyterLab auth token (env "+EnvToken+")")
	cmd.Flags().StringVar(&opts.BrowserURL, "browser-url", "", "DevTools WebSocket URL of a running Chrome; empty launches one (env "+EnvBrowserURL+")")
	cmd.Flags().StringVar(&opts.Baselines, "baselines", "", "baseline directory (default: <suite dir>/baselines/<suite name>)")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "write captures as the new baselines")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run tests whose name matches this glob")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record results in this SQLite database (env "+EnvDatabase+")")
	cmd.Flags().BoolVar(&opts.Headful, "headful", false, "show the browser window")
	cmd.Flags().BoolVar(&opts.Stealth, "stealth", false, "apply anti-automation patches to pages")
	cmd.Flags().Uint8Var(&opts.Threshold, "threshold", snapshot.DefaultTolerance.Threshold, "per-channel difference (0-255) under which pixels count as equal")
	cmd.Flags().Float64Var(&opts.MaxDiff, "max-diff", snapshot.DefaultTolerance.MaxDiffRatio, "fraction of differing pixels tolerated per image")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", harness.DefaultTestTimeout, "timeout for tests that set none")
	cmd.Flags().DurationVar(&opts.ActionTimeout, "action-timeout", 30*time.Second, "timeout for a single browser action")

	return cmd
}

func runSuite(ctx context.Context, opts *RunOptions, suitePath string, cmd *cobra.Command) error {
	log := opts.logger(cmd)
	formatter := opts.formatter(cmd)

	if opts.MaxDiff < 0 || opts.MaxDiff > 1 {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "invalid flags",
			fmt.Errorf("--max-diff must be between 0 and 1, got %v", opts.MaxDiff))
	}

	suite, err := harness.LoadSuite(suitePath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidSuite, "failed to load suite", err)
	}
	log.Info("suite loaded", "suite", suite.Name, "tests", len(suite.Tests))

	baseline := &snapshot.Baseline{
		Dir:       opts.baselineDir(suitePath, suite.Name),
		Tolerance: snapshot.Tolerance{Threshold: opts.Threshold, MaxDiffRatio: opts.MaxDiff},
		Update:    opts.Update,
		Logger:    log,
	}
	if err := baseline.CleanFailures(); err != nil {
		log.Warn("failed to remove old failure artifacts", "dir", baseline.Dir, "error", err)
	}

	client := contents.New(opts.BaseURL, contents.WithToken(opts.Token), contents.WithLogger(log))

	open := opts.OpenSessions
	if open == nil {
		open = openBrowserSessions
	}
	sessions, closeSessions, err := open(ctx, SessionConfig{
		BaseURL:       opts.BaseURL,
		Token:         opts.Token,
		BrowserURL:    opts.BrowserURL,
		Headful:       opts.Headful,
		Stealth:       opts.Stealth,
		ActionTimeout: opts.ActionTimeout,
		Contents:      client,
		Logger:        log,
	})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeBrowser, "failed to start browser", err)
	}
	defer func() {
		if closeErr := closeSessions(); closeErr != nil {
			log.Error("error closing browser", "error", closeErr)
		}
	}()

	runner := &harness.Runner{
		Contents:       client,
		Sessions:       sessions,
		Baseline:       baseline,
		Filter:         opts.Filter,
		DefaultTimeout: opts.Timeout,
		Logger:         log,
		Clock:          opts.Clock,
	}

	var history *runHistory
	if opts.Database != "" {
		history, err = openRunHistory(ctx, opts, suite.Name, suitePath)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open history database", err)
		}
		defer history.close(log)
		runner.Recorder = history
	}

	res, runErr := runner.Run(ctx, suite)

	report := newRunReport(suite.Name, suitePath, res)
	if history != nil {
		report.RunID = history.runID
		if err := history.finish(ctx, res); err != nil {
			log.Error("failed to finish run record", "run", history.runID, "error", err)
		}
	}

	if err := writeRunReport(formatter, report); err != nil {
		return WrapExitError(ExitCommandError, "failed to write output", err)
	}

	switch {
	case res.SetupError != "":
		return WrapExitError(ExitFailure, "suite setup failed", runErr)
	case runErr != nil:
		return WrapExitError(ExitFailure, "suite failed", runErr)
	case report.Failed > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("%d test(s) failed", report.Failed))
	}
	return nil
}

// baselineDir defaults to baselines/<suite name> next to the suite file.
func (o *RunOptions) baselineDir(suitePath, suiteName string) string {
	if o.Baselines != "" {
		return o.Baselines
	}
	return filepath.Join(filepath.Dir(suitePath), "baselines", suiteName)
}

func openBrowserSessions(ctx context.Context, cfg SessionConfig) (harness.SessionFactory, func() error, error) {
	mgr := browser.NewManager(browser.Config{
		RemoteURL:     cfg.BrowserURL,
		Headful:       cfg.Headful,
		Stealth:       cfg.Stealth,
		ActionTimeout: cfg.ActionTimeout,
		Logger:        cfg.Logger,
	})
	if err := mgr.Start(ctx); err != nil {
		return nil, nil, err
	}
	sessions := &harness.BrowserSessions{
		Browser:  mgr,
		Contents: cfg.Contents,
		BaseURL:  cfg.BaseURL,
		Token:    cfg.Token,
		Logger:   cfg.Logger,
	}
	return sessions, mgr.Close, nil
}

func newRunReport(suite, path string, res *harness.SuiteResult) RunReport {
	passed, failed, skipped := res.Counts()
	return RunReport{
		Suite:   suite,
		Path:    path,
		Passed:  passed,
		Failed:  failed,
		Skipped: skipped,
		Result:  res,
	}
}

func writeRunReport(f *OutputFormatter, r RunReport) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: r, RunID: r.RunID}
		if !r.Result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeTestFailed, Message: runFailureMessage(r)}
		}
		return f.JSON(resp)
	}
	writeRunText(f.Writer, r)
	return nil
}

func runFailureMessage(r RunReport) string {
	switch {
	case r.Result.SetupError != "":
		return "suite setup failed"
	case r.Result.TeardownError != "":
		return "suite teardown failed"
	case r.Failed > 0:
		return fmt.Sprintf("%d test(s) failed", r.Failed)
	}
	return "suite failed"
}

func writeRunText(w io.Writer, r RunReport) {
	res := r.Result
	fmt.Fprintf(w, "Suite %s (%s)\n", r.Suite, r.Path)
	if res.SetupError != "" {
		fmt.Fprintf(w, "✗ setup: %s\n", res.SetupError)
	}

	for _, t := range res.Tests {
		switch {
		case t.Skipped:
			fmt.Fprintf(w, "- %s (skipped)\n", t.Name)
			continue
		case t.Pass:
			fmt.Fprintf(w, "✓ %s (%s)\n", t.Name, t.Duration.Round(time.Millisecond))
		default:
			fmt.Fprintf(w, "✗ %s (%s)\n", t.Name, t.Duration.Round(time.Millisecond))
		}
		if t.Fatal != "" {
			fmt.Fprintf(w, "    fatal: %s\n", t.Fatal)
		}
		for _, e := range t.Errors {
			fmt.Fprintf(w, "    %s\n", firstLine(e))
		}
		for _, s := range t.Snapshots {
			switch {
			case s.Created:
				fmt.Fprintf(w, "    + %s (new baseline)\n", s.Name)
			case s.Updated:
				fmt.Fprintf(w, "    ~ %s (baseline updated)\n", s.Name)
			case !s.Match && s.ActualPath != "":
				fmt.Fprintf(w, "    ! %s differs, actual: %s\n", s.Name, s.ActualPath)
			}
		}
	}

	if res.TeardownError != "" {
		fmt.Fprintf(w, "✗ teardown: %s\n", res.TeardownError)
	}
	fmt.Fprintf(w, "\nSummary: %d passed, %d failed, %d skipped\n", r.Passed, r.Failed, r.Skipped)
	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", r.RunID)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}
