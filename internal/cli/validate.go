package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/bindform/internal/config"
)

// ConfigReport is the validation outcome of one config file.
type ConfigReport struct {
	Path   string `json:"path"`
	Valid  bool   `json:"valid"`
	Rules  int    `json:"rules"`
	Error  string `json:"error,omitempty"`
	Driver string `json:"driver,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yaml>...",
		Short: "Check binding configuration files",
		Long: `Check binding configuration files without binding a form.

Each file is parsed strictly (unknown keys are errors), range-checked,
and its rules file compiled. Default values must be representable
as JSON (no NaN or infinities).`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	out := formatter(cmd, opts)

	reports := make([]ConfigReport, 0, len(paths))
	invalid := 0
	for _, path := range paths {
		out.VerboseLog("Validating %s", path)
		report, err := validateConfig(path)
		if errors.Is(err, os.ErrNotExist) {
			return out.Fail(ExitCommandError, ErrCodeNotFound, "config not found", err)
		}
		if !report.Valid {
			invalid++
		}
		reports = append(reports, report)
	}

	if opts.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: reports}
		if invalid > 0 {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeInvalidConfig,
				Message: fmt.Sprintf("%d invalid config file(s)", invalid),
			}
		}
		if err := out.encode(resp); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, r := range reports {
			if r.Valid {
				fmt.Fprintf(w, "✓ %s (%d rule(s), storage %s)\n", r.Path, r.Rules, r.Driver)
				continue
			}
			fmt.Fprintf(w, "✗ %s\n  %s\n", r.Path, r.Error)
		}
	}

	if invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d invalid config file(s)", invalid))
	}
	if opts.Format != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ All configs valid")
	}
	return nil
}

// validateConfig loads path and builds its engine configuration. Only a
// missing file is returned as an error; every other problem is reported.
func validateConfig(path string) (ConfigReport, error) {
	report := ConfigReport{Path: path}

	f, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, err
		}
		report.Error = err.Error()
		return report, nil
	}

	cfg, err := f.EngineConfig()
	if err != nil {
		report.Error = err.Error()
		return report, nil
	}

	report.Valid = true
	report.Rules = len(cfg.Validators)
	report.Driver = f.Storage.Driver
	return report, nil
}
