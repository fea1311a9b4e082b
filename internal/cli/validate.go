package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/labshot/internal/harness"
)

// ValidationResult is the validation outcome of one suite file.
type ValidationResult struct {
	Path  string `json:"path"`
	Valid bool   `json:"valid"`
	Suite string `json:"suite,omitempty"`
	Tests int    `json:"tests,omitempty"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <suite.yaml>...",
		Short: "Validate suite files without running them",
		Long: `Validate suite files without touching the browser or the server.

Each file is checked against the suite schema, decoded strictly and built
into a runnable suite, which also checks that fixture files exist.`,
		Args:          usageArgs(cobra.MinimumNArgs(1)),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	results := make([]ValidationResult, 0, len(paths))
	invalid, missing := 0, 0
	for _, p := range paths {
		formatter.VerboseLog("Validating %s", p)
		res := validateSuiteFile(p)
		switch {
		case res.Code == ErrCodeNotFound:
			missing++
		case !res.Valid:
			invalid++
		}
		results = append(results, res)
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: results}
		if invalid+missing > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    firstErrorCode(results),
				Message: fmt.Sprintf("%d of %d suite file(s) invalid", invalid+missing, len(results)),
			}
		}
		if err := formatter.JSON(resp); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(formatter.Writer, "✓ %s: suite %q, %d test(s)\n", r.Path, r.Suite, r.Tests)
				continue
			}
			fmt.Fprintf(formatter.Writer, "✗ %s\n  %s: %s\n", r.Path, r.Code, r.Error)
		}
	}

	switch {
	case missing > 0:
		// A file that cannot be read is a usage problem, not a bad suite.
		return NewExitError(ExitCommandError, fmt.Sprintf("%d suite file(s) not found", missing))
	case invalid > 0:
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d suite file(s)", invalid))
	}
	return nil
}

func validateSuiteFile(path string) ValidationResult {
	res := ValidationResult{Path: path}
	if _, err := os.Stat(path); err != nil {
		res.Code = ErrCodeNotFound
		if !errors.Is(err, fs.ErrNotExist) {
			res.Code = ErrCodeGeneric
		}
		res.Error = err.Error()
		return res
	}

	suite, err := harness.LoadSuite(path)
	if err != nil {
		res.Code = ErrCodeInvalidSuite
		res.Error = err.Error()
		return res
	}
	res.Valid = true
	res.Suite = suite.Name
	res.Tests = len(suite.Tests)
	return res
}

func firstErrorCode(results []ValidationResult) string {
	for _, r := range results {
		if !r.Valid {
			return r.Code
		}
	}
	return ErrCodeGeneric
}
