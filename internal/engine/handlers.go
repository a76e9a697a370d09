package engine

import (
	"context"

	"github.com/roach88/courselink/internal/domain"
)

// Outcomes reported by the handlers.
const (
	OutcomeApplied     = "applied"
	OutcomeSelf        = "self"
	OutcomeDisabled    = "disabled"
	OutcomeNotCourse   = "not_course"
	OutcomeExcluded    = "excluded"
	OutcomeNoLinks     = "no_links"
	OutcomeNotEnrolled = "not_enrolled"
	OutcomeStillHeld   = "still_held"
)

// enabledLinksFrom returns the enabled, structurally valid links whose
// child is course.
func (e *Engine) enabledLinksFrom(ctx context.Context, course domain.CourseID) ([]domain.LinkInstance, error) {
	links, err := e.links.ListLinks(ctx, domain.LinkFilter{ChildCourseID: course, EnabledOnly: true})
	if err != nil {
		return nil, newStoreError("list links", err)
	}
	valid := links[:0]
	for _, l := range links {
		if err := l.Validate(); err != nil {
			e.logger.Warn("skipping invalid link", "link_id", l.ID, "error", err)
			continue
		}
		valid = append(valid, l)
	}
	return valid, nil
}

// HandleRoleGranted propagates a foreign role grant in a child course to
// every enabled parent, for users genuinely enrolled in the child.
func (e *Engine) HandleRoleGranted(ctx context.Context, ev domain.Event) (string, error) {
	if !e.Enabled() {
		return OutcomeDisabled, nil
	}
	if ev.Origin.IsLink() {
		e.logger.Debug("ignoring own role grant", "user_id", ev.UserID, "role_id", ev.RoleID)
		return OutcomeSelf, nil
	}
	child, ok := ev.Context.Course()
	if !ok {
		return OutcomeNotCourse, nil
	}
	if e.policy.Current().IsRoleExcluded(ev.RoleID) {
		return OutcomeExcluded, nil
	}

	links, err := e.enabledLinksFrom(ctx, child)
	if err != nil {
		return "", err
	}
	if len(links) == 0 {
		return OutcomeNoLinks, nil
	}

	enrolled, err := e.members.HasForeignMembership(ctx, ev.UserID, child)
	if err != nil {
		return "", newStoreError("check child membership", err)
	}
	if !enrolled {
		return OutcomeNotEnrolled, nil
	}

	for _, l := range links {
		ra := domain.RoleAssignment{
			UserID:  ev.UserID,
			RoleID:  ev.RoleID,
			Context: domain.CourseContext(l.ParentCourseID),
			Origin:  domain.LinkOrigin(l.ID),
		}
		e.apply(ctx, ev.Kind.String(), ActionAssign, ev.UserID, l.ID, func(ctx context.Context) (bool, error) {
			return e.roles.Assign(ctx, ra)
		}, "role_id", ev.RoleID, "course_id", l.ParentCourseID)
	}
	return OutcomeApplied, nil
}

// HandleRoleRevoked removes the link-tagged copy of a revoked role from
// every enabled parent, unless the user still holds the role in the child
// through another foreign assignment.
//
// The no-sync policy is not consulted: a role excluded after it was
// propagated must still be removable.
func (e *Engine) HandleRoleRevoked(ctx context.Context, ev domain.Event) (string, error) {
	if ev.Origin.IsLink() {
		e.logger.Debug("ignoring own role revoke", "user_id", ev.UserID, "role_id", ev.RoleID)
		return OutcomeSelf, nil
	}
	child, ok := ev.Context.Course()
	if !ok {
		return OutcomeNotCourse, nil
	}

	links, err := e.enabledLinksFrom(ctx, child)
	if err != nil {
		return "", err
	}
	if len(links) == 0 {
		return OutcomeNoLinks, nil
	}

	still, err := e.roles.HasForeignAssignment(ctx, ev.UserID, ev.RoleID, ev.Context)
	if err != nil {
		return "", newStoreError("check child roles", err)
	}
	if still {
		return OutcomeStillHeld, nil
	}

	for _, l := range links {
		ra := domain.RoleAssignment{
			UserID:  ev.UserID,
			RoleID:  ev.RoleID,
			Context: domain.CourseContext(l.ParentCourseID),
			Origin:  domain.LinkOrigin(l.ID),
		}
		e.apply(ctx, ev.Kind.String(), ActionUnassign, ev.UserID, l.ID, func(ctx context.Context) (bool, error) {
			// Checked under the pair lock so a concurrent grant for the
			// same pair cannot slip between check and delete.
			still, err := e.roles.HasForeignAssignment(ctx, ev.UserID, ev.RoleID, ev.Context)
			if err != nil || still {
				return false, err
			}
			return e.roles.Unassign(ctx, ra)
		}, "role_id", ev.RoleID, "course_id", l.ParentCourseID)
	}
	return OutcomeApplied, nil
}

// HandleMemberAdded enrols a user newly enrolled in a child course into
// every enabled parent, and carries over the foreign roles the user already
// holds in the child.
func (e *Engine) HandleMemberAdded(ctx context.Context, ev domain.Event) (string, error) {
	if !e.Enabled() {
		return OutcomeDisabled, nil
	}
	if ev.Origin.IsLink() {
		e.logger.Debug("ignoring own enrolment", "user_id", ev.UserID, "course_id", ev.CourseID)
		return OutcomeSelf, nil
	}

	links, err := e.enabledLinksFrom(ctx, ev.CourseID)
	if err != nil {
		return "", err
	}
	if len(links) == 0 {
		return OutcomeNoLinks, nil
	}

	// A redelivered event for a user who has since left must not re-enrol.
	enrolled, err := e.members.HasForeignMembership(ctx, ev.UserID, ev.CourseID)
	if err != nil {
		return "", newStoreError("check child membership", err)
	}
	if !enrolled {
		return OutcomeNotEnrolled, nil
	}

	roles, err := e.roles.ListForeignRoles(ctx, ev.UserID, domain.CourseContext(ev.CourseID))
	if err != nil {
		return "", newStoreError("list child roles", err)
	}
	excluded := e.policy.Current()

	for _, l := range links {
		m := domain.Membership{UserID: ev.UserID, CourseID: l.ParentCourseID, Origin: domain.LinkOrigin(l.ID)}
		_, err := e.apply(ctx, ev.Kind.String(), ActionEnrol, ev.UserID, l.ID, func(ctx context.Context) (bool, error) {
			return e.members.Enrol(ctx, m)
		}, "course_id", l.ParentCourseID)
		if err != nil {
			continue
		}

		for _, role := range roles {
			if excluded.IsRoleExcluded(role) {
				continue
			}
			ra := domain.RoleAssignment{
				UserID:  ev.UserID,
				RoleID:  role,
				Context: domain.CourseContext(l.ParentCourseID),
				Origin:  domain.LinkOrigin(l.ID),
			}
			e.apply(ctx, ev.Kind.String(), ActionAssign, ev.UserID, l.ID, func(ctx context.Context) (bool, error) {
				return e.roles.Assign(ctx, ra)
			}, "role_id", role, "course_id", l.ParentCourseID)
		}
	}
	return OutcomeApplied, nil
}

// HandleMemberRemoved unenrols a user from every enabled parent once the
// user holds no foreign membership in the child anymore. Unenrolling also
// drops the roles the link assigned in the parent.
func (e *Engine) HandleMemberRemoved(ctx context.Context, ev domain.Event) (string, error) {
	links, err := e.enabledLinksFrom(ctx, ev.CourseID)
	if err != nil {
		return "", err
	}
	if len(links) == 0 {
		return OutcomeNoLinks, nil
	}

	still, err := e.members.HasForeignMembership(ctx, ev.UserID, ev.CourseID)
	if err != nil {
		return "", newStoreError("check child membership", err)
	}
	if still {
		return OutcomeStillHeld, nil
	}

	for _, l := range links {
		m := domain.Membership{UserID: ev.UserID, CourseID: l.ParentCourseID, Origin: domain.LinkOrigin(l.ID)}
		e.apply(ctx, ev.Kind.String(), ActionUnenrol, ev.UserID, l.ID, func(ctx context.Context) (bool, error) {
			still, err := e.members.HasForeignMembership(ctx, ev.UserID, ev.CourseID)
			if err != nil || still {
				return false, err
			}
			return e.members.Unenrol(ctx, m)
		}, "course_id", l.ParentCourseID)
	}
	return OutcomeApplied, nil
}
