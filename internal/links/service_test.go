package links

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/engine"
	"github.com/roach88/courselink/internal/testutil"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *testutil.MemStore) {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewMemStore()
	courses := []domain.Course{
		{ID: domain.SiteCourseID, ShortName: "site", FullName: "Site", Visible: true},
		{ID: 2, ShortName: "MATH101", FullName: "Mathematics 101", Visible: true},
		{ID: 3, ShortName: "MATH", FullName: "Mathematics programme", Visible: true},
		{ID: 4, ShortName: "DRAFT", FullName: "Draft course", Visible: false},
	}
	for _, c := range courses {
		require.NoError(t, store.UpsertCourse(ctx, c))
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.NewFromStores(store, engine.WithLogger(logger))
	base := []Option{WithLogger(logger), WithClock(testutil.NewDeterministicClock())}
	return NewService(store, store, eng, append(base, opts...)...), store
}

func TestCreate_BootstrapsMembers(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	_, err := store.Enrol(ctx, domain.Membership{UserID: 7, CourseID: 2, Origin: domain.ForeignOrigin("")})
	require.NoError(t, err)

	link, res, err := svc.Create(ctx, 3, 2, "  Maths  ")
	require.NoError(t, err)
	assert.Equal(t, domain.LinkID(1), link.ID)
	assert.Equal(t, "Maths", link.Name)
	assert.Equal(t, testutil.Epoch, link.CreatedAt)
	assert.Equal(t, 1, res.Applied())

	ms, err := store.ListMemberships(ctx, 3)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, domain.LinkOrigin(link.ID), ms[0].Origin)
}

func TestCreate_Rejects(t *testing.T) {
	tests := []struct {
		name          string
		parent, child domain.CourseID
		check         func(error) bool
	}{
		{"self link", 3, 3, engine.IsInvalidLink},
		{"site root parent", domain.SiteCourseID, 2, engine.IsInvalidLink},
		{"site root child", 3, domain.SiteCourseID, engine.IsInvalidLink},
		{"missing child", 3, 99, engine.IsCourseNotFound},
		{"missing parent", 99, 2, engine.IsCourseNotFound},
		{"hidden child", 3, 4, engine.IsInvalidLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t)
			_, _, err := svc.Create(context.Background(), tt.parent, tt.child, "")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)

			links, err := store.ListLinks(context.Background(), domain.LinkFilter{})
			require.NoError(t, err)
			assert.Empty(t, links)
		})
	}
}

func TestCreate_Duplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Create(ctx, 3, 2, "")
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, 3, 2, "again")
	require.Error(t, err)
	assert.True(t, engine.IsDuplicateLink(err))
}

func TestCreate_HiddenAllowed(t *testing.T) {
	svc, _ := newTestService(t, WithHiddenTargets(true))
	_, _, err := svc.Create(context.Background(), 3, 4, "")
	require.NoError(t, err)
}

func TestListTargets(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ids := func(cs []domain.Course) []domain.CourseID {
		out := []domain.CourseID{}
		for _, c := range cs {
			out = append(out, c.ID)
		}
		return out
	}

	targets, err := svc.ListTargets(ctx, 3, false)
	require.NoError(t, err)
	assert.Equal(t, []domain.CourseID{2}, ids(targets))

	targets, err = svc.ListTargets(ctx, 3, true)
	require.NoError(t, err)
	assert.Equal(t, []domain.CourseID{2, 4}, ids(targets))

	ok, err := svc.HasCreatableTarget(ctx, 3, false)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = svc.Create(ctx, 3, 2, "")
	require.NoError(t, err)
	ok, err = svc.HasCreatableTarget(ctx, 3, false)
	require.NoError(t, err)
	assert.False(t, ok, "the only visible target is already linked")

	ok, err = svc.HasCreatableTarget(ctx, 3, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDisplayName(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	name, err := svc.DisplayName(ctx, domain.LinkInstance{ChildCourseID: 2, ParentCourseID: 3})
	require.NoError(t, err)
	assert.Equal(t, "Course link (Mathematics 101)", name)

	name, err = svc.DisplayName(ctx, domain.LinkInstance{ChildCourseID: 2, ParentCourseID: 3, Name: "Maths"})
	require.NoError(t, err)
	assert.Equal(t, "Maths", name)

	name, err = svc.DisplayName(ctx, domain.LinkInstance{ChildCourseID: 99, ParentCourseID: 3})
	require.NoError(t, err)
	assert.Equal(t, "Course link", name)
}

func TestSetStatusAndRemove(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	_, err := store.Enrol(ctx, domain.Membership{UserID: 7, CourseID: 2, Origin: domain.ForeignOrigin("")})
	require.NoError(t, err)

	link, _, err := svc.Create(ctx, 3, 2, "")
	require.NoError(t, err)

	_, err = svc.SetStatus(ctx, link.ID, domain.LinkDisabled)
	require.NoError(t, err)
	ms, err := store.ListMemberships(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, ms)

	_, err = svc.SetStatus(ctx, link.ID, domain.LinkEnabled)
	require.NoError(t, err)
	ms, err = store.ListMemberships(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, ms, 1)

	require.NoError(t, svc.Remove(ctx, link.ID))
	ms, err = store.ListMemberships(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, ms)

	links, err := svc.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, links)

	_, err = svc.SetStatus(ctx, link.ID, domain.LinkEnabled)
	assert.True(t, engine.IsLinkNotFound(err))
}
