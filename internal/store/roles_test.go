package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courselink/internal/domain"
)

func TestAssign_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ra := domain.RoleAssignment{UserID: 7, RoleID: 5, Context: domain.CourseContext(3), Origin: domain.LinkOrigin(1)}

	created, err := s.Assign(ctx, ra)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Assign(ctx, ra)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestUnassign_NeverTouchesForeign(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assign(t, s, 7, 5, 3, domain.ForeignOrigin(""))

	removed, err := s.Unassign(ctx, domain.RoleAssignment{
		UserID: 7, RoleID: 5, Context: domain.CourseContext(3), Origin: domain.LinkOrigin(1),
	})
	require.NoError(t, err)
	assert.False(t, removed)

	has, err := s.HasForeignAssignment(ctx, 7, 5, domain.CourseContext(3))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestListForeignRoles(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assign(t, s, 7, 5, 2, domain.ForeignOrigin(""))
	assign(t, s, 7, 5, 2, domain.ForeignOrigin("cohort"))
	assign(t, s, 7, 3, 2, domain.ForeignOrigin(""))
	assign(t, s, 7, 4, 2, domain.LinkOrigin(9))

	roles, err := s.ListForeignRoles(ctx, 7, domain.CourseContext(2))
	require.NoError(t, err)
	assert.Equal(t, []domain.RoleID{3, 5}, roles)
}

func TestDesiredLinkRoles_RequiresForeignMembership(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	link := seedLink(t, s, 2, 3)

	// 7 is enrolled and holds role 5; 8 holds role 5 without enrolment.
	enrol(t, s, 7, 2, domain.ForeignOrigin("manual"))
	assign(t, s, 7, 5, 2, domain.ForeignOrigin(""))
	assign(t, s, 8, 5, 2, domain.ForeignOrigin(""))
	// Module-level assignments never propagate.
	_, err := s.Assign(ctx, domain.RoleAssignment{
		UserID: 7, RoleID: 6, Context: domain.Context{Level: domain.LevelModule, InstanceID: 2}, Origin: domain.ForeignOrigin(""),
	})
	require.NoError(t, err)

	desired, err := s.DesiredLinkRoles(ctx, domain.ScopeAll())
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkRole{{UserID: 7, RoleID: 5, LinkID: link.ID, ParentCourseID: 3}}, desired)
}

func TestCurrentLinkRoles(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assign(t, s, 7, 5, 3, domain.LinkOrigin(1))
	assign(t, s, 7, 5, 3, domain.ForeignOrigin(""))
	assign(t, s, 8, 5, 4, domain.LinkOrigin(2))

	current, err := s.CurrentLinkRoles(ctx, domain.ScopeLink(1))
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkRole{{UserID: 7, RoleID: 5, LinkID: 1, ParentCourseID: 3}}, current)

	all, err := s.CurrentLinkRoles(ctx, domain.ScopeAll())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
