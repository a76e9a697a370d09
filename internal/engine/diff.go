package engine

import (
	"fmt"

	"github.com/roach88/courselink/internal/domain"
)

// Pass names, in execution order.
const (
	PassMembershipAdd    = "membership_add"
	PassMembershipRemove = "membership_remove"
	PassRoleAdd          = "role_add"
	PassRoleRemove       = "role_remove"
)

// Passes lists the reconciliation passes in the order they run. Membership
// runs first: role propagation is conditioned on enrolment.
var Passes = []string{PassMembershipAdd, PassMembershipRemove, PassRoleAdd, PassRoleRemove}

// Actions applied by the passes.
const (
	ActionEnrol    = "enrol"
	ActionUnenrol  = "unenrol"
	ActionAssign   = "assign"
	ActionUnassign = "unassign"
)

// Change is one planned mutation. RoleID is zero for membership changes.
type Change struct {
	Pass     string
	Action   string
	UserID   domain.UserID
	LinkID   domain.LinkID
	CourseID domain.CourseID
	RoleID   domain.RoleID
}

func (c Change) String() string {
	if c.RoleID != 0 {
		return fmt.Sprintf("%s user=%d role=%d course=%d link=%d", c.Action, c.UserID, c.RoleID, c.CourseID, c.LinkID)
	}
	return fmt.Sprintf("%s user=%d course=%d link=%d", c.Action, c.UserID, c.CourseID, c.LinkID)
}

// canonical renders the change for canonical JSON snapshots.
func (c Change) canonical() map[string]any {
	m := map[string]any{
		"pass":   c.Pass,
		"action": c.Action,
		"user":   c.UserID,
		"link":   c.LinkID,
		"course": c.CourseID,
	}
	if c.RoleID != 0 {
		m["role"] = c.RoleID
	}
	return m
}

// difference returns the elements of a that are not in b, keeping the
// order of a.
func difference[K comparable](a, b []K) []K {
	exclude := make(map[K]struct{}, len(b))
	for _, k := range b {
		exclude[k] = struct{}{}
	}
	out := []K{}
	for _, k := range a {
		if _, ok := exclude[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// filter returns the elements of in for which keep returns true.
func filter[K any](in []K, keep func(K) bool) []K {
	out := make([]K, 0, len(in))
	for _, k := range in {
		if keep(k) {
			out = append(out, k)
		}
	}
	return out
}

func memberChanges(pass, action string, ms []domain.LinkMember) []Change {
	out := make([]Change, 0, len(ms))
	for _, m := range ms {
		out = append(out, Change{Pass: pass, Action: action, UserID: m.UserID, LinkID: m.LinkID, CourseID: m.ParentCourseID})
	}
	return out
}

func roleChanges(pass, action string, rs []domain.LinkRole) []Change {
	out := make([]Change, 0, len(rs))
	for _, r := range rs {
		out = append(out, Change{Pass: pass, Action: action, UserID: r.UserID, LinkID: r.LinkID, CourseID: r.ParentCourseID, RoleID: r.RoleID})
	}
	return out
}
