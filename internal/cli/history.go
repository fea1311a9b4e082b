package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/labshot/internal/snapshot"
	"github.com/roach88/labshot/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	RunID    string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded suite runs",
		Long: `List suite runs recorded with "labshot run --db", newest first, or show
the tests and snapshots of a single run.

Example:
  labshot history --db labshot.db
  labshot history --db labshot.db --run 0192f3a4`,
		Args:          usageArgs(cobra.NoArgs),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Database = flagOrEnv(cmd, "db", EnvDatabase, opts.Database)
			return runHistoryCommand(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "labshot.db", "path to SQLite database (env "+EnvDatabase+")")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show one run; accepts an unambiguous ID prefix")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of runs to list (0 = all)")

	return cmd
}

func runHistoryCommand(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	// Reading history must not create an empty database.
	if _, err := os.Stat(opts.Database); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("database not found: %s", opts.Database), err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			opts.logger(cmd).Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()

	if opts.RunID != "" {
		detail, err := st.GetRun(ctx, opts.RunID)
		if errors.Is(err, sql.ErrNoRows) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound,
				fmt.Sprintf("run not found: %s", opts.RunID), nil)
		}
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to read run", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(detail)
		}
		writeRunDetail(formatter.Writer, detail)
		return nil
	}

	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeDatabase, "failed to list runs", err)
	}
	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	writeRunList(formatter.Writer, runs)
	return nil
}

const historyTime = "2006-01-02 15:04:05"

func writeRunList(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-19s  %-7s  %s\n", "RUN", "SUITE", "STARTED", "RESULT", "TESTS")
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %-19s  %-7s  %d passed, %d failed, %d skipped\n",
			r.ID, r.Suite, r.Started.UTC().Format(historyTime), runResult(r),
			r.Passed, r.Failed, r.Skipped)
	}
}

func writeRunDetail(w io.Writer, d *store.RunDetail) {
	fmt.Fprintf(w, "Run:      %s\n", d.ID)
	fmt.Fprintf(w, "Suite:    %s (%s)\n", d.Suite, d.SuitePath)
	fmt.Fprintf(w, "Started:  %s\n", d.Started.UTC().Format(historyTime))
	if d.Done() {
		fmt.Fprintf(w, "Finished: %s (%s)\n", d.Finished.UTC().Format(historyTime), d.Finished.Sub(d.Started))
	}
	fmt.Fprintf(w, "Result:   %s\n", runResult(d.Run))
	if d.SetupError != "" {
		fmt.Fprintf(w, "Setup:    %s\n", d.SetupError)
	}
	if d.TeardownError != "" {
		fmt.Fprintf(w, "Teardown: %s\n", d.TeardownError)
	}
	fmt.Fprintln(w)

	for _, t := range d.Tests {
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
			fmt.Fprintf(w, "    fatal [%s]: %s\n", t.Code, t.Fatal)
		}
		for _, e := range t.Errors {
			fmt.Fprintf(w, "    %s\n", firstLine(e))
		}
		for _, s := range t.Snapshots {
			fmt.Fprintf(w, "    %s %s\n", snapshotMark(s), snapshotLine(s))
		}
	}
	fmt.Fprintf(w, "\nSummary: %d passed, %d failed, %d skipped\n", d.Passed, d.Failed, d.Skipped)
}

func runResult(r store.Run) string {
	switch {
	case !r.Done():
		return "running"
	case r.Pass:
		return "pass"
	}
	return "fail"
}

func snapshotMark(s store.SnapshotRecord) string {
	switch {
	case s.Created:
		return "+"
	case s.Updated:
		return "~"
	case s.Match:
		return "="
	}
	return "!"
}

func snapshotLine(s store.SnapshotRecord) string {
	switch {
	case s.Created:
		return s.Name + " (new baseline)"
	case s.Updated:
		return s.Name + " (baseline updated)"
	case s.Match:
		return s.Name
	}
	line := s.Name
	if s.Kind == string(snapshot.KindImage) {
		line += fmt.Sprintf(" differs by %.2f%%", s.DiffRatio*100)
	} else {
		line += " differs"
	}
	if s.Soft {
		line += " (soft)"
	}
	if s.ActualPath != "" {
		line += ", actual: " + s.ActualPath
	}
	return line
}
