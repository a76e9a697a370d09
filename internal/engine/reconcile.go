package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/metrics"
)

// Reconcile recomputes the desired membership and role state for scope
// and applies the difference, in four passes:
//
//  1. membership_add: foreign members of an enabled child lacking the
//     link-tagged membership in the parent are enrolled
//  2. membership_remove: link-tagged memberships not backed by a foreign
//     membership in an enabled link's child are removed (disabled,
//     invalid and deleted links back nothing)
//  3. role_add: foreign course roles of enrolled child members, minus
//     excluded roles, are assigned in the parent
//  4. role_remove: link-tagged roles no longer backed under the current
//     policy are unassigned
//
// When the mechanism is globally disabled the add passes are skipped and
// every link-tagged role in scope is removed.
//
// A failed mutation is logged, recorded in Result.Failures and skipped.
// Cancelling ctx stops the run between mutations and returns ctx.Err();
// the next run starts from scratch.
func (e *Engine) Reconcile(ctx context.Context, scope domain.Scope) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: e.runIDs.Generate(), Scope: scope}
	log := e.logger.With("run_id", res.RunID, "scope", scope.String())
	log.Info("reconcile starting", "enabled", e.Enabled())

	eligible, err := e.eligibleLinks(ctx, scope, log)
	if err != nil {
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, err
	}

	for _, pass := range Passes {
		if ctx.Err() != nil {
			res.Interrupted = true
			break
		}

		passStart := time.Now()
		changes, skipped, err := e.planPass(ctx, pass, scope, eligible)
		if err != nil {
			log.Error("reconcile pass failed", "pass", pass, "error", err)
			metrics.ReconcileRuns.WithLabelValues("error").Inc()
			res.Duration = time.Since(start)
			return res, err
		}

		pr := PassResult{Pass: pass, Planned: len(changes), Skipped: skipped}
		for _, c := range changes {
			if ctx.Err() != nil {
				res.Interrupted = true
				break
			}
			changed, err := e.applyChange(ctx, c, eligible)
			switch {
			case err != nil:
				pr.Failed++
				res.Failures = append(res.Failures, Failure{Change: c, Error: err.Error()})
			case changed:
				pr.Applied++
			default:
				pr.Noop++
			}
		}
		pr.Duration = time.Since(passStart)
		res.Passes = append(res.Passes, pr)

		log.Debug("reconcile pass finished",
			"pass", pass,
			"planned", pr.Planned,
			"applied", pr.Applied,
			"failed", pr.Failed,
			"skipped", pr.Skipped,
		)
		if res.Interrupted {
			break
		}
	}

	res.Duration = time.Since(start)
	metrics.ReportReconcile(scopeLabel(scope), res.Duration)

	if res.Interrupted {
		metrics.ReconcileRuns.WithLabelValues("interrupted").Inc()
		log.Warn("reconcile interrupted", "applied", res.Applied(), "error", ctx.Err())
		return res, ctx.Err()
	}

	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	log.Info("reconcile finished",
		"applied", res.Applied(),
		"failed", res.Failed(),
		"duration", res.Duration,
	)
	return res, nil
}

// Plan computes the changes Reconcile would apply, without applying them.
// Role passes are computed against current state, so a user about to be
// unenrolled shows up in both membership_remove and role_remove.
func (e *Engine) Plan(ctx context.Context, scope domain.Scope) (*Plan, error) {
	log := e.logger.With("scope", scope.String())
	eligible, err := e.eligibleLinks(ctx, scope, log)
	if err != nil {
		return nil, err
	}

	plan := &Plan{Scope: scope, Changes: []Change{}}
	for _, pass := range Passes {
		changes, _, err := e.planPass(ctx, pass, scope, eligible)
		if err != nil {
			return nil, err
		}
		plan.Changes = append(plan.Changes, changes...)
	}
	return plan, nil
}

// ReconcileAll is the scheduler entry point: reconcile every link.
func (e *Engine) ReconcileAll(ctx context.Context) (*Result, error) {
	return e.Reconcile(ctx, domain.ScopeAll())
}

// eligibleLinks maps the enabled, structurally valid links in scope to
// their child course. Only these links may back a membership or role.
func (e *Engine) eligibleLinks(ctx context.Context, scope domain.Scope, log *slog.Logger) (map[domain.LinkID]domain.CourseID, error) {
	var links []domain.LinkInstance
	if scope.LinkID != 0 {
		l, err := e.links.GetLink(ctx, scope.LinkID)
		switch {
		case domain.IsNotFound(err):
			// Deleted link: nothing is eligible, leftovers get removed.
		case err != nil:
			return nil, newStoreError("get link", err)
		default:
			links = append(links, l)
		}
	} else {
		var err error
		links, err = e.links.ListLinks(ctx, domain.LinkFilter{ParentCourseID: scope.ParentCourseID, EnabledOnly: true})
		if err != nil {
			return nil, newStoreError("list links", err)
		}
	}

	eligible := make(map[domain.LinkID]domain.CourseID, len(links))
	for _, l := range links {
		if !l.Enabled() || !scope.Includes(l.ID, l.ParentCourseID) {
			continue
		}
		if err := l.Validate(); err != nil {
			log.Warn("invalid link treated as disabled", "link_id", l.ID, "error", err)
			continue
		}
		eligible[l.ID] = l.ChildCourseID
	}
	return eligible, nil
}

// planPass computes the changes of one pass. skipped reports a pass that
// does not run while the mechanism is disabled.
func (e *Engine) planPass(ctx context.Context, pass string, scope domain.Scope, eligible map[domain.LinkID]domain.CourseID) ([]Change, bool, error) {
	enabled := e.Enabled()

	switch pass {
	case PassMembershipAdd, PassMembershipRemove:
		if pass == PassMembershipAdd && !enabled {
			return []Change{}, true, nil
		}
		desired, err := e.members.DesiredLinkMembers(ctx, scope)
		if err != nil {
			return nil, false, newStoreError("query desired members", err)
		}
		desired = filter(desired, func(m domain.LinkMember) bool {
			_, ok := eligible[m.LinkID]
			return ok
		})
		current, err := e.members.CurrentLinkMembers(ctx, scope)
		if err != nil {
			return nil, false, newStoreError("query current members", err)
		}
		if pass == PassMembershipAdd {
			return memberChanges(pass, ActionEnrol, difference(desired, current)), false, nil
		}
		return memberChanges(pass, ActionUnenrol, difference(current, desired)), false, nil

	case PassRoleAdd, PassRoleRemove:
		if pass == PassRoleAdd && !enabled {
			return []Change{}, true, nil
		}
		desired := []domain.LinkRole{}
		if enabled {
			all, err := e.roles.DesiredLinkRoles(ctx, scope)
			if err != nil {
				return nil, false, newStoreError("query desired roles", err)
			}
			excluded := e.policy.Current()
			desired = filter(all, func(r domain.LinkRole) bool {
				_, ok := eligible[r.LinkID]
				return ok && !excluded.IsRoleExcluded(r.RoleID)
			})
		}
		current, err := e.roles.CurrentLinkRoles(ctx, scope)
		if err != nil {
			return nil, false, newStoreError("query current roles", err)
		}
		if pass == PassRoleAdd {
			return roleChanges(pass, ActionAssign, difference(desired, current)), false, nil
		}
		return roleChanges(pass, ActionUnassign, difference(current, desired)), false, nil
	}
	return []Change{}, true, nil
}

// applyChange applies one planned change under the pair lock. Removals
// are checked again first: the child side may have regained the record
// since the pass was planned.
func (e *Engine) applyChange(ctx context.Context, c Change, eligible map[domain.LinkID]domain.CourseID) (bool, error) {
	var mutate func(context.Context) (bool, error)
	switch c.Action {
	case ActionEnrol:
		m := domain.LinkMember{UserID: c.UserID, LinkID: c.LinkID, ParentCourseID: c.CourseID}.Membership()
		mutate = func(ctx context.Context) (bool, error) { return e.members.Enrol(ctx, m) }
	case ActionUnenrol:
		m := domain.LinkMember{UserID: c.UserID, LinkID: c.LinkID, ParentCourseID: c.CourseID}.Membership()
		mutate = func(ctx context.Context) (bool, error) {
			backed, err := e.memberStillBacked(ctx, c, eligible)
			if err != nil || backed {
				return false, err
			}
			return e.members.Unenrol(ctx, m)
		}
	case ActionAssign:
		ra := domain.LinkRole{UserID: c.UserID, RoleID: c.RoleID, LinkID: c.LinkID, ParentCourseID: c.CourseID}.Assignment()
		mutate = func(ctx context.Context) (bool, error) { return e.roles.Assign(ctx, ra) }
	case ActionUnassign:
		ra := domain.LinkRole{UserID: c.UserID, RoleID: c.RoleID, LinkID: c.LinkID, ParentCourseID: c.CourseID}.Assignment()
		mutate = func(ctx context.Context) (bool, error) {
			backed, err := e.roleStillBacked(ctx, c, eligible)
			if err != nil || backed {
				return false, err
			}
			return e.roles.Unassign(ctx, ra)
		}
	default:
		return false, fmt.Errorf("unknown action %q", c.Action)
	}

	attrs := []any{"course_id", c.CourseID}
	if c.RoleID != 0 {
		attrs = append(attrs, "role_id", c.RoleID)
	}
	return e.apply(ctx, c.Pass, c.Action, c.UserID, c.LinkID, mutate, attrs...)
}

// memberStillBacked reports whether the user now holds a foreign
// membership in the child of an eligible link.
func (e *Engine) memberStillBacked(ctx context.Context, c Change, eligible map[domain.LinkID]domain.CourseID) (bool, error) {
	child, ok := eligible[c.LinkID]
	if !ok {
		return false, nil
	}
	return e.members.HasForeignMembership(ctx, c.UserID, child)
}

// roleStillBacked reports whether the role would now be desired: the link
// is eligible, the mechanism enabled, the role not excluded, and the user
// holds both the role and a membership in the child.
func (e *Engine) roleStillBacked(ctx context.Context, c Change, eligible map[domain.LinkID]domain.CourseID) (bool, error) {
	child, ok := eligible[c.LinkID]
	if !ok || !e.Enabled() || e.policy.Current().IsRoleExcluded(c.RoleID) {
		return false, nil
	}
	held, err := e.roles.HasForeignAssignment(ctx, c.UserID, c.RoleID, domain.CourseContext(child))
	if err != nil || !held {
		return false, err
	}
	return e.members.HasForeignMembership(ctx, c.UserID, child)
}

func scopeLabel(s domain.Scope) string {
	switch {
	case s.LinkID != 0:
		return "link"
	case s.ParentCourseID != 0:
		return "course"
	default:
		return "all"
	}
}
