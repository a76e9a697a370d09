package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/engine"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Link   int64
	Course int64
	DryRun bool
}

// PassSummary is one pass of a reconcile run in JSON output.
type PassSummary struct {
	Pass    string `json:"pass"`
	Planned int    `json:"planned"`
	Applied int    `json:"applied"`
	Noop    int    `json:"noop"`
	Failed  int    `json:"failed"`
	Skipped bool   `json:"skipped,omitempty"`
}

// ReconcileSummary is the JSON output of a reconcile run.
type ReconcileSummary struct {
	RunID       string        `json:"run_id"`
	Scope       string        `json:"scope"`
	Applied     int           `json:"applied"`
	Failed      int           `json:"failed"`
	Interrupted bool          `json:"interrupted,omitempty"`
	Passes      []PassSummary `json:"passes"`
	Failures    []string      `json:"failures,omitempty"`
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Bring links into agreement with their child courses",
		Long: `Run the four reconciliation passes once.

Without flags every link is reconciled. --link restricts the run to one link
and --course to the links into one parent course. --dry-run prints the
changes that would be applied without touching anything.

Exit codes:
  0 - Reconciled (or nothing to do)
  1 - One or more mutations failed
  2 - Command error

Examples:
  courselink reconcile
  courselink reconcile --link 3
  courselink reconcile --course 12 --dry-run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Link, "link", 0, "reconcile only this link")
	cmd.Flags().Int64Var(&opts.Course, "course", 0, "reconcile only links into this parent course")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print planned changes without applying them")

	return cmd
}

func (o *ReconcileOptions) scope() (domain.Scope, error) {
	switch {
	case o.Link != 0 && o.Course != 0:
		return domain.Scope{}, NewExitError(ExitCommandError, "--link and --course are mutually exclusive")
	case o.Link < 0 || o.Course < 0:
		return domain.Scope{}, NewExitError(ExitCommandError, "ids must be positive")
	case o.Link != 0:
		return domain.ScopeLink(domain.LinkID(o.Link)), nil
	case o.Course != 0:
		return domain.ScopeCourse(domain.CourseID(o.Course)), nil
	default:
		return domain.ScopeAll(), nil
	}
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	scope, err := opts.scope()
	if err != nil {
		return err
	}

	a, err := openApp(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	formatter := newFormatter(opts.RootOptions, cmd)

	if opts.DryRun {
		plan, err := a.engine.Plan(ctx, scope)
		if err != nil {
			return formatter.Fail("plan failed", err)
		}
		return outputPlan(formatter, plan)
	}

	formatter.VerboseLog("Reconciling %s", scope)
	res, err := a.engine.Reconcile(ctx, scope)
	if err != nil {
		return formatter.Fail("reconcile failed", err)
	}
	if err := a.settle(ctx); err != nil {
		return err
	}

	if err := outputReconcile(formatter, res); err != nil {
		return err
	}
	if res.Failed() > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d mutation(s) failed", res.Failed()))
	}
	return nil
}

func outputPlan(f *OutputFormatter, plan *engine.Plan) error {
	data, err := plan.Canonical()
	if err != nil {
		return err
	}

	var b strings.Builder
	if plan.Empty() {
		fmt.Fprintf(&b, "Nothing to do (%s)\n", plan.Scope)
	}
	for _, c := range plan.Changes {
		fmt.Fprintf(&b, "%-17s %s\n", c.Pass, c)
	}
	return f.Result(json.RawMessage(data), b.String())
}

func summarize(res *engine.Result) ReconcileSummary {
	s := ReconcileSummary{
		RunID:       res.RunID,
		Scope:       res.Scope.String(),
		Applied:     res.Applied(),
		Failed:      res.Failed(),
		Interrupted: res.Interrupted,
		Passes:      make([]PassSummary, 0, len(res.Passes)),
	}
	for _, p := range res.Passes {
		s.Passes = append(s.Passes, PassSummary{
			Pass:    p.Pass,
			Planned: p.Planned,
			Applied: p.Applied,
			Noop:    p.Noop,
			Failed:  p.Failed,
			Skipped: p.Skipped,
		})
	}
	for _, fl := range res.Failures {
		s.Failures = append(s.Failures, fmt.Sprintf("%s: %s", fl.Change, fl.Error))
	}
	return s
}

func outputReconcile(f *OutputFormatter, res *engine.Result) error {
	s := summarize(res)

	var b strings.Builder
	fmt.Fprintf(&b, "Reconciled %s: %d applied, %d failed (run %s)\n", s.Scope, s.Applied, s.Failed, s.RunID)
	for _, p := range s.Passes {
		if p.Skipped {
			fmt.Fprintf(&b, "  %-17s skipped\n", p.Pass)
			continue
		}
		fmt.Fprintf(&b, "  %-17s planned=%d applied=%d noop=%d failed=%d\n", p.Pass, p.Planned, p.Applied, p.Noop, p.Failed)
	}
	for _, fl := range s.Failures {
		fmt.Fprintf(&b, "  failed: %s\n", fl)
	}
	if s.Interrupted {
		b.WriteString("  interrupted\n")
	}
	return f.Result(s, b.String())
}
