package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/labshot/internal/contents"
	"github.com/roach88/labshot/internal/snapshot"
)

// CleanOptions holds flags for the clean command.
type CleanOptions struct {
	*RootOptions
	BaseURL  string
	Token    string
	Failures string
}

// CleanResult is the payload of the clean command.
type CleanResult struct {
	Path     string `json:"path"`
	Removed  bool   `json:"removed"`
	Failures string `json:"failures,omitempty"`
}

// NewCleanCommand creates the clean command.
func NewCleanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CleanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "clean <dir>",
		Short: "Remove a working directory left on the server",
		Long: `Delete a suite working directory, and everything under it, through the
contents API. Use it after a run was killed before its teardown.

Example:
  labshot clean notebook-run-test
  labshot clean notebook-run-test --failures suites/baselines/notebook-run`,
		Args:          usageArgs(cobra.ExactArgs(1)),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.BaseURL = flagOrEnv(cmd, "base-url", EnvBaseURL, opts.BaseURL)
			opts.Token = flagOrEnv(cmd, "token", EnvToken, opts.Token)
			return runClean(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.BaseURL, "base-url", "http://localhost:8888", "JupyterLab server root (env "+EnvBaseURL+")")
	cmd.Flags().StringVar(&opts.Token, "token", "", "JupyterLab auth token (env "+EnvToken+")")
	cmd.Flags().StringVar(&opts.Failures, "failures", "", "also remove failure artifacts under this baseline directory")

	return cmd
}

func runClean(opts *CleanOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	dir = strings.Trim(dir, "/")
	if dir == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "refusing to delete the server root", nil)
	}

	client := contents.New(opts.BaseURL, contents.WithToken(opts.Token), contents.WithLogger(opts.logger(cmd)))
	res := CleanResult{Path: dir}

	exists, err := client.Exists(ctx, dir)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeTransfer, "failed to reach contents API", err)
	}
	if exists {
		if err := client.DeleteDirectory(ctx, dir); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeTransfer, fmt.Sprintf("failed to delete %s", dir), err)
		}
		res.Removed = true
	}

	if opts.Failures != "" {
		b := &snapshot.Baseline{Dir: opts.Failures}
		if err := b.CleanFailures(); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, "failed to remove failure artifacts", err)
		}
		res.Failures = opts.Failures
	}

	if formatter.Format == "json" {
		return formatter.Success(res)
	}
	if res.Removed {
		fmt.Fprintf(formatter.Writer, "✓ Removed %s\n", dir)
	} else {
		fmt.Fprintf(formatter.Writer, "✓ Nothing to remove at %s\n", dir)
	}
	if res.Failures != "" {
		fmt.Fprintf(formatter.Writer, "✓ Removed failure artifacts under %s\n", res.Failures)
	}
	return nil
}
