package domain

import "context"

// CourseLookup reads courses owned by the platform.
type CourseLookup interface {
	GetCourse(ctx context.Context, id CourseID) (Course, error)
	ListCourses(ctx context.Context) ([]Course, error)
}

// LinkFilter selects link instances. Zero fields match everything.
type LinkFilter struct {
	ChildCourseID  CourseID
	ParentCourseID CourseID
	EnabledOnly    bool
}

// Matches reports whether l passes the filter.
func (f LinkFilter) Matches(l LinkInstance) bool {
	if f.ChildCourseID != 0 && l.ChildCourseID != f.ChildCourseID {
		return false
	}
	if f.ParentCourseID != 0 && l.ParentCourseID != f.ParentCourseID {
		return false
	}
	if f.EnabledOnly && !l.Enabled() {
		return false
	}
	return true
}

// LinkLookup reads link instances.
type LinkLookup interface {
	GetLink(ctx context.Context, id LinkID) (LinkInstance, error)
	ListLinks(ctx context.Context, filter LinkFilter) ([]LinkInstance, error)
}

// LinkRegistry is the read/write link registry.
type LinkRegistry interface {
	LinkLookup
	// CreateLink stores a new link and returns it with its id assigned.
	CreateLink(ctx context.Context, link LinkInstance) (LinkInstance, error)
	SetLinkStatus(ctx context.Context, id LinkID, status LinkStatus) error
	// DeleteLink retires a link. Deleting a missing link is not an error.
	DeleteLink(ctx context.Context, id LinkID) error
}

// MembershipStore reads and writes membership records.
//
// Enrol and Unenrol report whether a row changed; repeating a call is a
// no-op, never an error.
type MembershipStore interface {
	Enrol(ctx context.Context, m Membership) (bool, error)
	// Unenrol removes the membership. For link-tagged memberships it also
	// removes the role assignments the same link made for that user in
	// that course.
	Unenrol(ctx context.Context, m Membership) (bool, error)
	HasForeignMembership(ctx context.Context, user UserID, course CourseID) (bool, error)
	ListMemberships(ctx context.Context, course CourseID) ([]Membership, error)

	// DesiredLinkMembers returns, for every enabled link in scope, the users
	// with a foreign membership in the link's child.
	DesiredLinkMembers(ctx context.Context, scope Scope) ([]LinkMember, error)
	// CurrentLinkMembers returns every link-tagged membership in scope,
	// including those of disabled or deleted links.
	CurrentLinkMembers(ctx context.Context, scope Scope) ([]LinkMember, error)
}

// RoleStore reads and writes role assignments.
type RoleStore interface {
	Assign(ctx context.Context, ra RoleAssignment) (bool, error)
	Unassign(ctx context.Context, ra RoleAssignment) (bool, error)
	HasForeignAssignment(ctx context.Context, user UserID, role RoleID, at Context) (bool, error)
	ListForeignRoles(ctx context.Context, user UserID, at Context) ([]RoleID, error)
	ListAssignments(ctx context.Context, at Context) ([]RoleAssignment, error)

	// DesiredLinkRoles returns, for every enabled link in scope, the foreign
	// role assignments in the link's child held by users who also hold a
	// foreign membership there. Exclusion policy is applied by the caller.
	DesiredLinkRoles(ctx context.Context, scope Scope) ([]LinkRole, error)
	// CurrentLinkRoles returns every link-tagged course-level assignment in scope.
	CurrentLinkRoles(ctx context.Context, scope Scope) ([]LinkRole, error)
}

// Stores bundles every port. Both storage adapters satisfy it.
type Stores interface {
	CourseLookup
	LinkRegistry
	MembershipStore
	RoleStore
}
