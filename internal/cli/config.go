package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/courselink/internal/config"
)

// ConfigCheck is the JSON output of config validate.
type ConfigCheck struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigValidateCommand(rootOpts))
	return cmd
}

func newConfigValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a config file against the schema",
		Long: `Check a config file against the schema and report every problem.

A malformed nosync_roles list is reported here even though the running
engine tolerates it by excluding nothing.

Exit codes:
  0 - Valid
  1 - Invalid
  2 - Command error`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := rootOpts.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return NewExitError(ExitCommandError, "no config file given (use --config or an argument)")
			}
			return runConfigValidate(rootOpts, path, cmd)
		},
	}
}

func runConfigValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	if _, err := os.Stat(path); err != nil {
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}

	var problems []error
	cfg, err := config.Load(path)
	if err != nil {
		problems = []error{err}
	} else {
		problems = cfg.Lint()
	}

	if len(problems) == 0 {
		return f.Result(ConfigCheck{Valid: true}, fmt.Sprintf("✓ %s is valid\n", path))
	}

	check := ConfigCheck{Valid: false}
	var b strings.Builder
	fmt.Fprintf(&b, "✗ %s\n", path)
	for _, p := range problems {
		for _, line := range strings.Split(p.Error(), "\n") {
			check.Errors = append(check.Errors, line)
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	if err := f.Result(check, b.String()); err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d config error(s)", len(check.Errors)))
}
