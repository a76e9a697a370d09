package domain

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// CourseID identifies a course.
type CourseID int64

// UserID identifies a user.
type UserID int64

// RoleID identifies a role kind (student, teacher, ...).
type RoleID int64

// LinkID identifies a LinkInstance.
type LinkID int64

// SiteCourseID is the reserved site root course. It is never a valid link endpoint.
const SiteCourseID CourseID = 1

// LinkComponent is the component name recorded on every record this engine owns.
const LinkComponent = "courselink"

// Course is a unit of content owned by the platform. Read-only to the engine.
type Course struct {
	ID        CourseID
	ShortName string
	FullName  string
	Visible   bool
}

// LinkStatus is the lifecycle state of a LinkInstance.
type LinkStatus int

const (
	LinkEnabled LinkStatus = iota
	LinkDisabled
)

func (s LinkStatus) String() string {
	switch s {
	case LinkEnabled:
		return "enabled"
	case LinkDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseLinkStatus parses "enabled" or "disabled".
func ParseLinkStatus(s string) (LinkStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled":
		return LinkEnabled, nil
	case "disabled":
		return LinkDisabled, nil
	default:
		return 0, fmt.Errorf("unknown link status %q", s)
	}
}

// LinkInstance mirrors membership and roles of ChildCourseID into ParentCourseID.
type LinkInstance struct {
	ID             LinkID
	ChildCourseID  CourseID
	ParentCourseID CourseID
	Status         LinkStatus
	Name           string
	CreatedAt      time.Time
}

// Enabled reports whether the link currently propagates.
func (l LinkInstance) Enabled() bool {
	return l.Status == LinkEnabled
}

// Validate checks the structural invariants of a link. It does not consult
// storage, so duplicate pairs are detected elsewhere.
func (l LinkInstance) Validate() error {
	if l.ChildCourseID == l.ParentCourseID {
		return &InvalidLinkError{Child: l.ChildCourseID, Parent: l.ParentCourseID, Reason: "child and parent are the same course"}
	}
	if l.ParentCourseID == SiteCourseID || l.ChildCourseID == SiteCourseID {
		return &InvalidLinkError{Child: l.ChildCourseID, Parent: l.ParentCourseID, Reason: "the site course cannot be linked"}
	}
	if l.ChildCourseID <= 0 || l.ParentCourseID <= 0 {
		return &InvalidLinkError{Child: l.ChildCourseID, Parent: l.ParentCourseID, Reason: "course ids must be positive"}
	}
	return nil
}

// NormalizeName trims and NFC-normalizes a display name so names typed on
// different platforms compare equal.
func NormalizeName(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ContextLevel is the depth of an authorization context.
type ContextLevel int

const (
	LevelSystem   ContextLevel = 10
	LevelCategory ContextLevel = 40
	LevelCourse   ContextLevel = 50
	LevelModule   ContextLevel = 70
)

// Context is an authorization context a role is assigned in.
type Context struct {
	Level      ContextLevel
	InstanceID int64
}

// CourseContext returns the course-level context of a course.
func CourseContext(id CourseID) Context {
	return Context{Level: LevelCourse, InstanceID: int64(id)}
}

// Course returns the course a course-level context belongs to.
func (c Context) Course() (CourseID, bool) {
	if c.Level != LevelCourse {
		return 0, false
	}
	return CourseID(c.InstanceID), true
}

func (c Context) String() string {
	return fmt.Sprintf("%d/%d", c.Level, c.InstanceID)
}

// Membership records that a user is enrolled in a course via Origin.
type Membership struct {
	UserID   UserID
	CourseID CourseID
	Origin   Origin
}

// RoleAssignment records that a user holds a role in a context via Origin.
type RoleAssignment struct {
	UserID  UserID
	RoleID  RoleID
	Context Context
	Origin  Origin
}

// LinkMember is one element of the membership sets compared by reconciliation:
// the user should (or does) hold a link-tagged membership in ParentCourseID.
type LinkMember struct {
	UserID         UserID
	LinkID         LinkID
	ParentCourseID CourseID
}

// Membership converts the element into the record it stands for.
func (m LinkMember) Membership() Membership {
	return Membership{UserID: m.UserID, CourseID: m.ParentCourseID, Origin: LinkOrigin(m.LinkID)}
}

// LinkRole is one element of the role sets compared by reconciliation.
type LinkRole struct {
	UserID         UserID
	RoleID         RoleID
	LinkID         LinkID
	ParentCourseID CourseID
}

// Assignment converts the element into the record it stands for.
func (r LinkRole) Assignment() RoleAssignment {
	return RoleAssignment{
		UserID:  r.UserID,
		RoleID:  r.RoleID,
		Context: CourseContext(r.ParentCourseID),
		Origin:  LinkOrigin(r.LinkID),
	}
}
