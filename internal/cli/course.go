package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/courselink/internal/domain"
)

// NewCourseCommand creates the course command group. Courses belong to the
// platform; these commands mirror platform changes into the database and
// publish the matching events.
func NewCourseCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course",
		Short: "Mirror platform courses",
	}
	cmd.AddCommand(newCourseAddCommand(rootOpts))
	cmd.AddCommand(newCourseDeleteCommand(rootOpts))
	cmd.AddCommand(newCourseListCommand(rootOpts))
	return cmd
}

func newCourseAddCommand(rootOpts *RootOptions) *cobra.Command {
	var shortName, fullName string
	var hidden bool

	cmd := &cobra.Command{
		Use:   "add <course-id>",
		Short: "Create or update a course",
		Long: `Create or update a course. Updating a course reconciles the links into it.

Example:
  courselink course add 12 --short MATH --name "Mathematics programme"
  courselink course add 7 --name "Algebra" --hidden`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCourseID(args[0])
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
			c := domain.Course{ID: id, ShortName: shortName, FullName: fullName, Visible: !hidden}
			if err := a.store.UpsertCourse(ctx, c); err != nil {
				return f.Fail("course add failed", err)
			}
			if err := a.settle(ctx); err != nil {
				return err
			}
			return f.Result(courseView(c), fmt.Sprintf("Saved course %d\n", id))
		},
	}

	cmd.Flags().StringVar(&shortName, "short", "", "short name")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "hide the course")
	return cmd
}

func newCourseDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <course-id>",
		Short:         "Delete a course and retire the links on either side of it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCourseID(args[0])
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
			if err := a.store.DeleteCourse(ctx, id); err != nil {
				return f.Fail("course delete failed", err)
			}
			if err := a.settle(ctx); err != nil {
				return err
			}
			return f.Result(map[string]any{"deleted": id}, fmt.Sprintf("Deleted course %d\n", id))
		},
	}
}

func newCourseListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List courses",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			f := newFormatter(rootOpts, cmd)
			courses, err := a.backend.ListCourses(commandContext(cmd))
			if err != nil {
				return f.Fail("course list failed", err)
			}
			views := make([]CourseView, 0, len(courses))
			var b strings.Builder
			for _, c := range courses {
				views = append(views, courseView(c))
				visibility := "visible"
				if !c.Visible {
					visibility = "hidden"
				}
				fmt.Fprintf(&b, "%d\t%s\t%s\t%s\n", c.ID, c.ShortName, c.FullName, visibility)
			}
			return f.Result(views, b.String())
		},
	}
}

func parseCourseID(s string) (domain.CourseID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid course id %q", s))
	}
	return domain.CourseID(id), nil
}
