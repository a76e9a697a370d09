package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courselink/internal/domain"
)

func TestOnLinkCreated_Bootstraps(t *testing.T) {
	f := newFixture(t)
	f.courses(2, 3)
	f.enrol(7, 2)
	f.enrol(8, 2)
	f.grant(7, roleTeacher, 2)
	l := f.link(2, 3)

	res, err := f.eng.OnLinkCreated(f.ctx, l)
	require.NoError(t, err)
	assert.Equal(t, domain.ScopeLink(l), res.Scope)
	assert.Equal(t, 3, res.Applied())
	assert.Equal(t, []string{fmtMember(7, l), fmtMember(8, l)}, f.linkMembers(3))
	f.requireInvariant()
}

func TestOnLinkCreated_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.eng.OnLinkCreated(f.ctx, 99)
	require.Error(t, err)
	assert.True(t, IsLinkNotFound(err))

	f.store.PutLink(domain.LinkInstance{ID: 5, ChildCourseID: 3, ParentCourseID: domain.SiteCourseID})
	_, err = f.eng.OnLinkCreated(f.ctx, 5)
	require.Error(t, err)
	assert.True(t, IsInvalidLink(err))
	assert.False(t, IsStoreFailure(err))
}

func TestHandleCourseRemoved_RetiresLinksBothWays(t *testing.T) {
	f := newFixture(t)
	f.courses(2, 3, 5, 6)
	asParent := f.link(2, 3)
	asChild := f.link(3, 5)
	disabled := f.link(6, 3)
	untouched := f.link(2, 5)
	require.NoError(t, f.store.SetLinkStatus(f.ctx, disabled, domain.LinkDisabled))

	f.enrol(7, 2)
	f.enrol(8, 3)
	f.grant(8, roleStudent, 3)
	f.reconcile(domain.ScopeAll())
	require.Equal(t, []string{fmtMember(7, asParent)}, f.linkMembers(3))
	require.Equal(t, []string{fmtMember(7, untouched), fmtMember(8, asChild)}, f.linkMembers(5))

	outcome, err := f.eng.Handle(f.ctx, domain.CourseRemovedEvent(3))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, outcome)

	links, err := f.store.ListLinks(f.ctx, domain.LinkFilter{})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, untouched, links[0].ID)

	assert.Empty(t, f.linkMembers(3))
	assert.Equal(t, []string{fmtMember(7, untouched)}, f.linkMembers(5))
	assert.Empty(t, f.linkRoles(5))
	f.requireInvariant()
}

// flakyRegistry fails the link deletions the test asks it to.
type flakyRegistry struct {
	domain.LinkRegistry
	mock.Mock
}

func (r *flakyRegistry) DeleteLink(ctx context.Context, id domain.LinkID) error {
	if err := r.Called(id).Error(0); err != nil {
		return err
	}
	return r.LinkRegistry.DeleteLink(ctx, id)
}

func TestHandleCourseRemoved_FailedLinkDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	f.courses(2, 3, 4)
	l1 := f.link(2, 3)
	l2 := f.link(2, 4)
	f.enrol(7, 2)
	f.reconcile(domain.ScopeAll())
	require.Equal(t, []string{fmtMember(7, l2)}, f.linkMembers(4))

	registry := &flakyRegistry{LinkRegistry: f.store}
	registry.On("DeleteLink", l1).Return(errors.New("database is locked"))
	registry.On("DeleteLink", l2).Return(nil)
	eng := New(registry, f.store, f.store, WithLogger(discardLogger()))

	_, err := eng.Handle(f.ctx, domain.CourseRemovedEvent(2))
	require.Error(t, err)
	assert.True(t, IsStoreFailure(err))
	assert.Contains(t, err.Error(), "database is locked")
	registry.AssertExpectations(t)

	_, err = f.store.GetLink(f.ctx, l2)
	assert.True(t, domain.IsNotFound(err), "link %d retired despite the failure on %d", l2, l1)
	assert.Empty(t, f.linkMembers(4))

	_, err = f.store.GetLink(f.ctx, l1)
	require.NoError(t, err, "failed link is left in place")
	assert.Empty(t, f.linkMembers(3), "members are removed before the delete fails")

	require.NoError(t, f.eng.RemoveLink(f.ctx, l1))
	links, err := f.store.ListLinks(f.ctx, domain.LinkFilter{})
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestRemoveLink_DeleteFailure(t *testing.T) {
	f := newFixture(t)
	f.courses(2, 3)
	l := f.link(2, 3)

	registry := &flakyRegistry{LinkRegistry: f.store}
	registry.On("DeleteLink", l).Return(errors.New("disk full"))
	eng := New(registry, f.store, f.store, WithLogger(discardLogger()))

	err := eng.RemoveLink(f.ctx, l)
	require.Error(t, err)
	assert.True(t, IsStoreFailure(err))
	registry.AssertExpectations(t)
}

func TestHandleCourseRemoved_NoLinks(t *testing.T) {
	f := newFixture(t)
	f.courses(2)
	outcome, err := f.eng.HandleCourseRemoved(f.ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoLinks, outcome)
	require.NoError(t, f.eng.OnCourseDeleted(f.ctx, 2))
}

func TestHandleCourseUpdated_ReconcilesParent(t *testing.T) {
	f := newFixture(t)
	f.courses(2, 3)
	l := f.link(2, 3)
	f.enrol(7, 2)

	assert.Equal(t, OutcomeApplied, f.handle(domain.CourseUpdatedEvent(3)))
	assert.Equal(t, []string{fmtMember(7, l)}, f.linkMembers(3))
}

func TestRemoveLink(t *testing.T) {
	f := newFixture(t)
	f.courses(2, 3)
	l := f.link(2, 3)
	f.enrol(7, 2)
	f.grant(7, roleStudent, 2)
	f.reconcile(domain.ScopeAll())

	require.NoError(t, f.eng.RemoveLink(f.ctx, l))
	assert.Empty(t, f.linkMembers(3))
	assert.Empty(t, f.linkRoles(3))

	_, err := f.store.GetLink(f.ctx, l)
	assert.True(t, domain.IsNotFound(err))

	err = f.eng.RemoveLink(f.ctx, l)
	assert.True(t, IsLinkNotFound(err))
}

func TestRunPeriodic(t *testing.T) {
	f := newFixture(t)
	f.courses(2, 3)
	l := f.link(2, 3)
	f.enrol(7, 2)

	ctx, cancel := context.WithCancel(f.ctx)
	done := make(chan error, 1)
	go func() { done <- f.eng.RunPeriodic(ctx, time.Hour) }()

	require.Eventually(t, func() bool {
		ms, err := f.store.ListMemberships(f.ctx, 3)
		return err == nil && len(ms) == 1 && ms[0].Origin == domain.LinkOrigin(l)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}
