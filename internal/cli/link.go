package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/courselink/internal/domain"
)

// LinkView is a link in command output.
type LinkView struct {
	ID          domain.LinkID   `json:"id"`
	Child       domain.CourseID `json:"child"`
	Parent      domain.CourseID `json:"parent"`
	Status      string          `json:"status"`
	DisplayName string          `json:"display_name"`
	CreatedAt   string          `json:"created_at,omitempty"`
}

// CourseView is a course in command output.
type CourseView struct {
	ID        domain.CourseID `json:"id"`
	ShortName string          `json:"short_name"`
	FullName  string          `json:"full_name"`
	Visible   bool            `json:"visible"`
}

func courseView(c domain.Course) CourseView {
	return CourseView{ID: c.ID, ShortName: c.ShortName, FullName: c.FullName, Visible: c.Visible}
}

// NewLinkCommand creates the link command group.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Create, list and manage course links",
	}
	cmd.AddCommand(newLinkAddCommand(rootOpts))
	cmd.AddCommand(newLinkListCommand(rootOpts))
	cmd.AddCommand(newLinkStatusCommand(rootOpts, "enable", domain.LinkEnabled))
	cmd.AddCommand(newLinkStatusCommand(rootOpts, "disable", domain.LinkDisabled))
	cmd.AddCommand(newLinkRemoveCommand(rootOpts))
	cmd.AddCommand(newLinkTargetsCommand(rootOpts))
	return cmd
}

func newLinkAddCommand(rootOpts *RootOptions) *cobra.Command {
	var parent, child int64
	var name string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Link a child course into a parent course",
		Long: `Link a child course into a parent course and synchronise it at once.

Example:
  courselink link add --parent 12 --child 7
  courselink link add --parent 12 --child 8 --name "Algebra stream"`,
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

			link, res, err := a.links.Create(ctx, domain.CourseID(parent), domain.CourseID(child), name)
			if err != nil {
				return f.Fail("link add failed", err)
			}
			if err := a.settle(ctx); err != nil {
				return err
			}

			view, err := a.linkView(cmd, link)
			if err != nil {
				return f.Fail("link add failed", err)
			}
			summary := summarize(res)
			text := fmt.Sprintf("Created link %d: %d -> %d (%s), %d applied\n", link.ID, link.ChildCourseID, link.ParentCourseID, view.DisplayName, summary.Applied)
			return f.Result(map[string]any{"link": view, "reconcile": summary}, text)
		},
	}

	cmd.Flags().Int64Var(&parent, "parent", 0, "parent course id (required)")
	cmd.Flags().Int64Var(&child, "child", 0, "child course id (required)")
	cmd.Flags().StringVar(&name, "name", "", "link name (defaults to the child course's name)")
	_ = cmd.MarkFlagRequired("parent")
	_ = cmd.MarkFlagRequired("child")

	return cmd
}

func newLinkListCommand(rootOpts *RootOptions) *cobra.Command {
	var parent int64

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List links, optionally into one parent course",
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
			links, err := a.links.List(commandContext(cmd), domain.CourseID(parent))
			if err != nil {
				return f.Fail("link list failed", err)
			}

			views := make([]LinkView, 0, len(links))
			var b strings.Builder
			for _, l := range links {
				v, err := a.linkView(cmd, l)
				if err != nil {
					return f.Fail("link list failed", err)
				}
				views = append(views, v)
				fmt.Fprintf(&b, "%d\t%d -> %d\t%s\t%s\n", v.ID, v.Child, v.Parent, v.Status, v.DisplayName)
			}
			if len(links) == 0 {
				b.WriteString("No links.\n")
			}
			return f.Result(views, b.String())
		},
	}

	cmd.Flags().Int64Var(&parent, "parent", 0, "only links into this parent course")
	return cmd
}

func newLinkStatusCommand(rootOpts *RootOptions, verb string, status domain.LinkStatus) *cobra.Command {
	return &cobra.Command{
		Use:           verb + " <link-id>",
		Short:         fmt.Sprintf("%s a link and reconcile it", strings.ToUpper(verb[:1])+verb[1:]),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLinkID(args[0])
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

			res, err := a.links.SetStatus(ctx, id, status)
			if err != nil {
				return f.Fail("link "+verb+" failed", err)
			}
			if err := a.settle(ctx); err != nil {
				return err
			}
			summary := summarize(res)
			text := fmt.Sprintf("Link %d %s, %d applied, %d failed\n", id, status, summary.Applied, summary.Failed)
			return f.Result(summary, text)
		},
	}
}

func newLinkRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <link-id>",
		Short:         "Remove a link and everything it created",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseLinkID(args[0])
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
			if err := a.links.Remove(ctx, id); err != nil {
				return f.Fail("link remove failed", err)
			}
			if err := a.settle(ctx); err != nil {
				return err
			}
			return f.Result(map[string]any{"removed": id}, fmt.Sprintf("Removed link %d\n", id))
		},
	}
}

func newLinkTargetsCommand(rootOpts *RootOptions) *cobra.Command {
	var parent int64
	var hidden bool

	cmd := &cobra.Command{
		Use:           "targets",
		Short:         "List the courses that can be linked into a parent course",
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
			targets, err := a.links.ListTargets(commandContext(cmd), domain.CourseID(parent), hidden)
			if err != nil {
				return f.Fail("link targets failed", err)
			}

			views := make([]CourseView, 0, len(targets))
			var b strings.Builder
			for _, c := range targets {
				views = append(views, courseView(c))
				fmt.Fprintf(&b, "%d\t%s\t%s\n", c.ID, c.ShortName, c.FullName)
			}
			if len(targets) == 0 {
				b.WriteString("No course can be linked.\n")
			}
			return f.Result(views, b.String())
		},
	}

	cmd.Flags().Int64Var(&parent, "parent", 0, "parent course id (required)")
	cmd.Flags().BoolVar(&hidden, "hidden", false, "include hidden courses")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}

func (a *app) linkView(cmd *cobra.Command, l domain.LinkInstance) (LinkView, error) {
	name, err := a.links.DisplayName(commandContext(cmd), l)
	if err != nil {
		return LinkView{}, err
	}
	v := LinkView{ID: l.ID, Child: l.ChildCourseID, Parent: l.ParentCourseID, Status: l.Status.String(), DisplayName: name}
	if !l.CreatedAt.IsZero() {
		v.CreatedAt = l.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v, nil
}

func parseLinkID(s string) (domain.LinkID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid link id %q", s))
	}
	return domain.LinkID(id), nil
}
