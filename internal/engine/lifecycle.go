package engine

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/metrics"
)

// ActionRetire is the metrics action for deleting a link.
const ActionRetire = "retire"

// OnLinkCreated bootstraps a new link by reconciling it alone.
func (e *Engine) OnLinkCreated(ctx context.Context, id domain.LinkID) (*Result, error) {
	link, err := e.links.GetLink(ctx, id)
	if domain.IsNotFound(err) {
		return nil, newLinkNotFoundError(id, err)
	}
	if err != nil {
		return nil, newStoreError("get link", err)
	}
	if err := link.Validate(); err != nil {
		return nil, newInvalidLinkError(id, err)
	}
	return e.Reconcile(ctx, domain.ScopeLink(id))
}

// OnCourseDeleted is the structural deletion hook; see HandleCourseRemoved.
func (e *Engine) OnCourseDeleted(ctx context.Context, course domain.CourseID) error {
	_, err := e.HandleCourseRemoved(ctx, course)
	return err
}

// HandleCourseRemoved retires every link whose child or parent is course,
// after removing everything those links own. A link that fails to retire
// does not stop the others; the failures are returned joined.
//
// Disabled links are retired too: a link pointing at a deleted course can
// never become valid again.
func (e *Engine) HandleCourseRemoved(ctx context.Context, course domain.CourseID) (string, error) {
	asChild, err := e.links.ListLinks(ctx, domain.LinkFilter{ChildCourseID: course})
	if err != nil {
		return "", newStoreError("list links", err)
	}
	asParent, err := e.links.ListLinks(ctx, domain.LinkFilter{ParentCourseID: course})
	if err != nil {
		return "", newStoreError("list links", err)
	}

	links := append(asChild, asParent...)
	if len(links) == 0 {
		return OutcomeNoLinks, nil
	}

	e.logger.Info("course removed, retiring links", "course_id", course, "links", len(links))
	source := domain.CourseRemoved.String()
	var errs []error
	for _, l := range links {
		err := e.retireLink(ctx, l.ID, source)
		metrics.ReportMutation(source, ActionRetire, err == nil, err)
		if err != nil {
			e.logger.Error("failed to retire link", "course_id", course, "link_id", l.ID, "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// HandleCourseUpdated reconciles the links into course.
func (e *Engine) HandleCourseUpdated(ctx context.Context, course domain.CourseID) (string, error) {
	if _, err := e.Reconcile(ctx, domain.ScopeCourse(course)); err != nil {
		return "", err
	}
	return OutcomeApplied, nil
}

// RemoveLink is explicit link removal: same cleanup as a course deletion,
// for one link.
func (e *Engine) RemoveLink(ctx context.Context, id domain.LinkID) error {
	if _, err := e.links.GetLink(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			return newLinkNotFoundError(id, err)
		}
		return newStoreError("get link", err)
	}
	err := e.retireLink(ctx, id, "remove_link")
	metrics.ReportMutation("remove_link", ActionRetire, err == nil, err)
	return err
}

// retireLink unenrols every member of the link (which drops their link
// roles), removes any remaining link roles, then deletes the link. Member
// failures do not block deletion: leftovers of a deleted link are removed
// by the next reconciliation.
func (e *Engine) retireLink(ctx context.Context, id domain.LinkID, source string) error {
	scope := domain.ScopeLink(id)

	members, err := e.members.CurrentLinkMembers(ctx, scope)
	if err != nil {
		return newStoreError("query link members", err)
	}
	for _, m := range members {
		mm := m.Membership()
		e.apply(ctx, source, ActionUnenrol, m.UserID, id, func(ctx context.Context) (bool, error) {
			return e.members.Unenrol(ctx, mm)
		}, "course_id", m.ParentCourseID)
	}

	roles, err := e.roles.CurrentLinkRoles(ctx, scope)
	if err != nil {
		return newStoreError("query link roles", err)
	}
	for _, r := range roles {
		ra := r.Assignment()
		e.apply(ctx, source, ActionUnassign, r.UserID, id, func(ctx context.Context) (bool, error) {
			return e.roles.Unassign(ctx, ra)
		}, "course_id", r.ParentCourseID, "role_id", r.RoleID)
	}

	if err := e.links.DeleteLink(ctx, id); err != nil {
		return newStoreError("delete link", err)
	}
	e.logger.Info("link retired", "link_id", id, "members", len(members))
	return nil
}

// RunPeriodic runs ReconcileAll immediately and then every interval until
// ctx is cancelled. Failed runs are logged; the loop keeps going.
func (e *Engine) RunPeriodic(ctx context.Context, interval time.Duration) error {
	e.logger.Info("periodic reconciliation starting", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := e.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("periodic reconciliation failed", "error", err)
		}

		select {
		case <-ctx.Done():
			e.logger.Info("periodic reconciliation stopping: context cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
