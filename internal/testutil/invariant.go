package testutil

import (
	"context"
	"fmt"
	"sort"

	"github.com/roach88/courselink/internal/domain"
)

// CheckInvariant returns every violation of the link invariant in s:
// for each enabled valid link C -> P, link-tagged members of P are exactly
// the foreign members of C, and link-tagged roles in P are exactly the
// non-excluded foreign roles in C of those members. Link-tagged records of
// any other link are violations too.
//
// When enabled is false no link-tagged role may exist at all, and missing
// memberships are tolerated since additions are paused.
func CheckInvariant(ctx context.Context, s domain.Stores, excluded func(domain.RoleID) bool, enabled bool) ([]string, error) {
	if excluded == nil {
		excluded = func(domain.RoleID) bool { return false }
	}
	var violations []string

	links, err := s.ListLinks(ctx, domain.LinkFilter{EnabledOnly: true})
	if err != nil {
		return nil, err
	}
	live := make(map[domain.LinkID]domain.LinkInstance)
	for _, l := range links {
		if l.Validate() == nil {
			live[l.ID] = l
		}
	}

	wantMembers := make(map[domain.LinkMember]bool)
	wantRoles := make(map[domain.LinkRole]bool)
	for _, l := range live {
		ms, err := s.ListMemberships(ctx, l.ChildCourseID)
		if err != nil {
			return nil, err
		}
		enrolled := make(map[domain.UserID]bool)
		for _, m := range ms {
			if !m.Origin.IsLink() {
				enrolled[m.UserID] = true
				wantMembers[domain.LinkMember{UserID: m.UserID, LinkID: l.ID, ParentCourseID: l.ParentCourseID}] = true
			}
		}
		if !enabled {
			continue
		}
		ras, err := s.ListAssignments(ctx, domain.CourseContext(l.ChildCourseID))
		if err != nil {
			return nil, err
		}
		for _, ra := range ras {
			if ra.Origin.IsLink() || !enrolled[ra.UserID] || excluded(ra.RoleID) {
				continue
			}
			wantRoles[domain.LinkRole{UserID: ra.UserID, RoleID: ra.RoleID, LinkID: l.ID, ParentCourseID: l.ParentCourseID}] = true
		}
	}

	gotMembers := make(map[domain.LinkMember]bool)
	gotRoles := make(map[domain.LinkRole]bool)
	courses, err := s.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range courses {
		ms, err := s.ListMemberships(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			if m.Origin.IsLink() {
				gotMembers[domain.LinkMember{UserID: m.UserID, LinkID: m.Origin.LinkID, ParentCourseID: c.ID}] = true
			}
		}
		ras, err := s.ListAssignments(ctx, domain.CourseContext(c.ID))
		if err != nil {
			return nil, err
		}
		for _, ra := range ras {
			if ra.Origin.IsLink() {
				gotRoles[domain.LinkRole{UserID: ra.UserID, RoleID: ra.RoleID, LinkID: ra.Origin.LinkID, ParentCourseID: c.ID}] = true
			}
		}
	}

	for m := range wantMembers {
		if enabled && !gotMembers[m] {
			violations = append(violations, fmt.Sprintf("missing membership user=%d course=%d link=%d", m.UserID, m.ParentCourseID, m.LinkID))
		}
	}
	for m := range gotMembers {
		if !wantMembers[m] {
			violations = append(violations, fmt.Sprintf("unjustified membership user=%d course=%d link=%d", m.UserID, m.ParentCourseID, m.LinkID))
		}
	}
	for r := range wantRoles {
		if !gotRoles[r] {
			violations = append(violations, fmt.Sprintf("missing role user=%d role=%d course=%d link=%d", r.UserID, r.RoleID, r.ParentCourseID, r.LinkID))
		}
	}
	for r := range gotRoles {
		if !wantRoles[r] {
			violations = append(violations, fmt.Sprintf("unjustified role user=%d role=%d course=%d link=%d", r.UserID, r.RoleID, r.ParentCourseID, r.LinkID))
		}
	}
	sort.Strings(violations)
	return violations, nil
}
