package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bindform/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario|dir>...",
		Short: "Run binding scenarios",
		Long: `Run binding scenarios against a simulated form and virtual clock.

Each argument is a scenario file or a directory of *.yaml scenarios.
Every scenario binds its form, replays its steps and checks its
assertions. The command fails if any scenario fails.

Example:
  bindform run ./scenarios
  bindform run profile_edit.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	return cmd
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	out := formatter(cmd, opts.RootOptions)

	suite, err := harness.RunSuite(cmd.Context(), paths, harness.Options{
		Logger: newLogger(cmd.ErrOrStderr(), opts.Verbose),
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return out.Fail(ExitCommandError, ErrCodeNotFound, "scenario not found", err)
		}
		return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to collect scenarios", err)
	}
	if suite.Total == 0 {
		return out.Fail(ExitCommandError, ErrCodeNotFound, "no scenario files found", nil)
	}

	if opts.Format == "json" {
		if suite.Pass() {
			return out.Success(suite)
		}
		if err := out.encode(CLIResponse{
			Status: "error",
			Data:   suite,
			Error: &CLIError{
				Code:    ErrCodeScenarioFailed,
				Message: fmt.Sprintf("%d scenario(s) failed", suite.Failed),
			},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}

	w := cmd.OutOrStdout()
	failed := make(map[string]harness.SuiteFailure, len(suite.Failures))
	for _, f := range suite.Failures {
		failed[f.Path] = f
	}
	files, _ := harness.FindScenarios(paths)
	for _, path := range files {
		f, bad := failed[path]
		if !bad {
			fmt.Fprintf(w, "✓ %s\n", path)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", path)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)
	if !suite.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}
