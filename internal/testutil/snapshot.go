package testutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/courselink/internal/domain"
)

// State is a deterministic rendering of everything a store holds, for
// equality checks and golden files.
type State struct {
	Links       []string
	Memberships []string
	Roles       []string
}

// Capture reads the full state of s. Only records in known courses are
// visible, so tests must register every course they use.
func Capture(ctx context.Context, s domain.Stores) (State, error) {
	st := State{Links: []string{}, Memberships: []string{}, Roles: []string{}}

	links, err := s.ListLinks(ctx, domain.LinkFilter{})
	if err != nil {
		return State{}, err
	}
	for _, l := range links {
		st.Links = append(st.Links, fmt.Sprintf("%d: %d -> %d %s", l.ID, l.ChildCourseID, l.ParentCourseID, l.Status))
	}

	courses, err := s.ListCourses(ctx)
	if err != nil {
		return State{}, err
	}
	for _, c := range courses {
		ms, err := s.ListMemberships(ctx, c.ID)
		if err != nil {
			return State{}, err
		}
		for _, m := range ms {
			st.Memberships = append(st.Memberships, fmt.Sprintf("course=%d user=%d via=%s", m.CourseID, m.UserID, m.Origin))
		}
		ras, err := s.ListAssignments(ctx, domain.CourseContext(c.ID))
		if err != nil {
			return State{}, err
		}
		for _, ra := range ras {
			st.Roles = append(st.Roles, fmt.Sprintf("course=%d user=%d role=%d via=%s", c.ID, ra.UserID, ra.RoleID, ra.Origin))
		}
	}
	return st, nil
}

// Canonical renders the state as canonical JSON.
func (s State) Canonical() ([]byte, error) {
	return domain.MarshalCanonical(map[string]any{
		"links":       s.Links,
		"memberships": s.Memberships,
		"roles":       s.Roles,
	})
}

func (s State) String() string {
	var b strings.Builder
	for _, section := range []struct {
		name  string
		lines []string
	}{{"links", s.Links}, {"memberships", s.Memberships}, {"roles", s.Roles}} {
		fmt.Fprintf(&b, "%s:\n", section.name)
		for _, line := range section.lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
	}
	return b.String()
}
