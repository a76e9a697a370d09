package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/courselink/internal/testutil"
)

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Print links, memberships and roles",
		Long: `Print every link, membership and course role in the database.

With --check, also verify that link-owned records match what the enabled
links justify, and exit 1 on any difference.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			f := newFormatter(rootOpts, cmd)

			state, err := testutil.Capture(ctx, a.backend)
			if err != nil {
				return f.Fail("state failed", err)
			}

			var violations []string
			if check {
				violations, err = testutil.CheckInvariant(ctx, a.backend, a.engine.Policy().Current().IsRoleExcluded, a.engine.Enabled())
				if err != nil {
					return f.Fail("state check failed", err)
				}
			}

			data, err := state.Canonical()
			if err != nil {
				return err
			}
			text := state.String()
			for _, v := range violations {
				text += "violation: " + v + "\n"
			}
			payload := map[string]any{"state": json.RawMessage(data)}
			if check {
				payload["violations"] = violations
			}
			if err := f.Result(payload, text); err != nil {
				return err
			}
			if len(violations) > 0 {
				return NewExitError(ExitFailure, "state does not match the links")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "verify link-owned records against the links")
	return cmd
}
