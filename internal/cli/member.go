package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/courselink/internal/domain"
)

// NewMemberCommand creates the member command group: platform enrolments
// made by mechanisms other than course links.
func NewMemberCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Enrol or unenrol users the way the platform would",
	}
	cmd.AddCommand(newMemberCommand(rootOpts, "add", "Enrol a user in a course", func(ctx context.Context, a *app, m domain.Membership) (bool, error) {
		return a.store.Enrol(ctx, m)
	}))
	cmd.AddCommand(newMemberCommand(rootOpts, "remove", "Unenrol a user from a course", func(ctx context.Context, a *app, m domain.Membership) (bool, error) {
		return a.store.Unenrol(ctx, m)
	}))
	return cmd
}

func newMemberCommand(rootOpts *RootOptions, use, short string, apply func(context.Context, *app, domain.Membership) (bool, error)) *cobra.Command {
	var user, course int64
	var via string

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, err := foreignOrigin(via)
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			f := newFormatter(rootOpts, cmd)
			m := domain.Membership{UserID: domain.UserID(user), CourseID: domain.CourseID(course), Origin: origin}
			changed, err := apply(ctx, a, m)
			if err != nil {
				return f.Fail("member "+use+" failed", err)
			}
			if err := a.settle(ctx); err != nil {
				return err
			}
			text := fmt.Sprintf("member %s user=%d course=%d via=%s: %s\n", use, user, course, origin, changedText(changed))
			return f.Result(map[string]any{"changed": changed}, text)
		},
	}

	cmd.Flags().Int64Var(&user, "user", 0, "user id (required)")
	cmd.Flags().Int64Var(&course, "course", 0, "course id (required)")
	cmd.Flags().StringVar(&via, "via", "", "enrolment mechanism (default manual)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

// NewRoleCommand creates the role command group: course-level role grants
// made by mechanisms other than course links.
func NewRoleCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Grant or revoke course roles the way the platform would",
	}
	cmd.AddCommand(newRoleCommand(rootOpts, "grant", "Grant a role in a course", func(ctx context.Context, a *app, ra domain.RoleAssignment) (bool, error) {
		return a.store.Assign(ctx, ra)
	}))
	cmd.AddCommand(newRoleCommand(rootOpts, "revoke", "Revoke a role in a course", func(ctx context.Context, a *app, ra domain.RoleAssignment) (bool, error) {
		return a.store.Unassign(ctx, ra)
	}))
	return cmd
}

func newRoleCommand(rootOpts *RootOptions, use, short string, apply func(context.Context, *app, domain.RoleAssignment) (bool, error)) *cobra.Command {
	var user, role, course int64
	var via string

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			origin, err := foreignOrigin(via)
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := commandContext(cmd)
			f := newFormatter(rootOpts, cmd)
			ra := domain.RoleAssignment{
				UserID:  domain.UserID(user),
				RoleID:  domain.RoleID(role),
				Context: domain.CourseContext(domain.CourseID(course)),
				Origin:  origin,
			}
			changed, err := apply(ctx, a, ra)
			if err != nil {
				return f.Fail("role "+use+" failed", err)
			}
			if err := a.settle(ctx); err != nil {
				return err
			}
			text := fmt.Sprintf("role %s user=%d role=%d course=%d via=%s: %s\n", use, user, role, course, origin, changedText(changed))
			return f.Result(map[string]any{"changed": changed}, text)
		},
	}

	cmd.Flags().Int64Var(&user, "user", 0, "user id (required)")
	cmd.Flags().Int64Var(&role, "role", 0, "role id (required)")
	cmd.Flags().Int64Var(&course, "course", 0, "course id (required)")
	cmd.Flags().StringVar(&via, "via", "", "granting mechanism (default manual)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("course")
	return cmd
}

// foreignOrigin maps --via to a foreign origin. Link-owned records are
// written only by the engine.
func foreignOrigin(via string) (domain.Origin, error) {
	if via == domain.LinkComponent {
		return domain.Origin{}, NewExitError(ExitCommandError, fmt.Sprintf("--via %s is reserved for link-created records", via))
	}
	return domain.ForeignOrigin(via), nil
}

func changedText(changed bool) string {
	if changed {
		return "done"
	}
	return "no change"
}
