package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courselink/internal/domain"
)

func TestDeterministicClock(t *testing.T) {
	c := NewDeterministicClock()
	assert.Equal(t, Epoch, c.Now())
	assert.Equal(t, Epoch.Add(time.Second), c.Now())

	c.Reset()
	assert.Equal(t, Epoch, c.Now())
}

func TestFixedRunIDGenerator(t *testing.T) {
	assert.Equal(t, "test-run", NewFixedRunIDGenerator("").Generate())
	assert.Equal(t, "r1", NewFixedRunIDGenerator("r1").Generate())
}

func TestMemStore_UnenrolRemovesLinkRoles(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	_, err := s.Enrol(ctx, domain.Membership{UserID: 7, CourseID: 3, Origin: domain.LinkOrigin(1)})
	require.NoError(t, err)
	_, err = s.Assign(ctx, domain.RoleAssignment{UserID: 7, RoleID: 5, Context: domain.CourseContext(3), Origin: domain.LinkOrigin(1)})
	require.NoError(t, err)
	_, err = s.Assign(ctx, domain.RoleAssignment{UserID: 7, RoleID: 5, Context: domain.CourseContext(3), Origin: domain.ForeignOrigin("")})
	require.NoError(t, err)

	removed, err := s.Unenrol(ctx, domain.Membership{UserID: 7, CourseID: 3, Origin: domain.LinkOrigin(1)})
	require.NoError(t, err)
	assert.True(t, removed)

	roles, err := s.ListAssignments(ctx, domain.CourseContext(3))
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.False(t, roles[0].Origin.IsLink())
}

func TestMemStore_DesiredSetsMatchSQLSemantics(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()

	link, err := s.CreateLink(ctx, domain.LinkInstance{ChildCourseID: 2, ParentCourseID: 3})
	require.NoError(t, err)
	_, err = s.CreateLink(ctx, domain.LinkInstance{ChildCourseID: 2, ParentCourseID: 3})
	assert.ErrorIs(t, err, domain.ErrDuplicateLink)

	_, err = s.Enrol(ctx, domain.Membership{UserID: 7, CourseID: 2, Origin: domain.ForeignOrigin("manual")})
	require.NoError(t, err)
	_, err = s.Assign(ctx, domain.RoleAssignment{UserID: 7, RoleID: 5, Context: domain.CourseContext(2), Origin: domain.ForeignOrigin("")})
	require.NoError(t, err)
	_, err = s.Assign(ctx, domain.RoleAssignment{UserID: 8, RoleID: 5, Context: domain.CourseContext(2), Origin: domain.ForeignOrigin("")})
	require.NoError(t, err)

	members, err := s.DesiredLinkMembers(ctx, domain.ScopeAll())
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkMember{{UserID: 7, LinkID: link.ID, ParentCourseID: 3}}, members)

	roles, err := s.DesiredLinkRoles(ctx, domain.ScopeAll())
	require.NoError(t, err)
	assert.Equal(t, []domain.LinkRole{{UserID: 7, RoleID: 5, LinkID: link.ID, ParentCourseID: 3}}, roles)

	require.NoError(t, s.SetLinkStatus(ctx, link.ID, domain.LinkDisabled))
	members, err = s.DesiredLinkMembers(ctx, domain.ScopeAll())
	require.NoError(t, err)
	assert.Empty(t, members)
}
