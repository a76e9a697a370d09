package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/policy"
	"github.com/roach88/courselink/internal/testutil"
)

const (
	roleStudent domain.RoleID = 5
	roleTeacher domain.RoleID = 3
	roleGuest   domain.RoleID = 6
)

var manual = domain.ForeignOrigin("")

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *testutil.MemStore
	policy *policy.Source
	eng    *Engine
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  testutil.NewMemStore(),
		policy: policy.NewSource(nil),
	}
	base := []EngineOption{
		WithLogger(discardLogger()),
		WithPolicy(f.policy),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("")),
	}
	f.eng = NewFromStores(f.store, append(base, opts...)...)
	return f
}

func (f *fixture) courses(ids ...domain.CourseID) {
	f.t.Helper()
	for _, id := range ids {
		require.NoError(f.t, f.store.UpsertCourse(f.ctx, domain.Course{
			ID:        id,
			ShortName: fmt.Sprintf("C%d", id),
			FullName:  fmt.Sprintf("Course %d", id),
			Visible:   true,
		}))
	}
}

// link creates an enabled link without reconciling it.
func (f *fixture) link(child, parent domain.CourseID) domain.LinkID {
	f.t.Helper()
	l, err := f.store.CreateLink(f.ctx, domain.LinkInstance{ChildCourseID: child, ParentCourseID: parent, Status: domain.LinkEnabled})
	require.NoError(f.t, err)
	return l.ID
}

func (f *fixture) enrol(user domain.UserID, course domain.CourseID) {
	f.t.Helper()
	_, err := f.store.Enrol(f.ctx, domain.Membership{UserID: user, CourseID: course, Origin: manual})
	require.NoError(f.t, err)
}

func (f *fixture) unenrol(user domain.UserID, course domain.CourseID) {
	f.t.Helper()
	_, err := f.store.Unenrol(f.ctx, domain.Membership{UserID: user, CourseID: course, Origin: manual})
	require.NoError(f.t, err)
}

func (f *fixture) grant(user domain.UserID, role domain.RoleID, course domain.CourseID) {
	f.t.Helper()
	_, err := f.store.Assign(f.ctx, domain.RoleAssignment{UserID: user, RoleID: role, Context: domain.CourseContext(course), Origin: manual})
	require.NoError(f.t, err)
}

func (f *fixture) revoke(user domain.UserID, role domain.RoleID, course domain.CourseID) {
	f.t.Helper()
	_, err := f.store.Unassign(f.ctx, domain.RoleAssignment{UserID: user, RoleID: role, Context: domain.CourseContext(course), Origin: manual})
	require.NoError(f.t, err)
}

func (f *fixture) reconcile(scope domain.Scope) *Result {
	f.t.Helper()
	res, err := f.eng.Reconcile(f.ctx, scope)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) handle(ev domain.Event) string {
	f.t.Helper()
	outcome, err := f.eng.Handle(f.ctx, ev)
	require.NoError(f.t, err)
	return outcome
}

// linkMembers returns "user@link" for every link-tagged membership in course.
func (f *fixture) linkMembers(course domain.CourseID) []string {
	f.t.Helper()
	ms, err := f.store.ListMemberships(f.ctx, course)
	require.NoError(f.t, err)
	out := []string{}
	for _, m := range ms {
		if m.Origin.IsLink() {
			out = append(out, fmt.Sprintf("%d@%d", m.UserID, m.Origin.LinkID))
		}
	}
	return out
}

// linkRoles returns "user:role@link" for every link-tagged role in course.
func (f *fixture) linkRoles(course domain.CourseID) []string {
	f.t.Helper()
	ras, err := f.store.ListAssignments(f.ctx, domain.CourseContext(course))
	require.NoError(f.t, err)
	out := []string{}
	for _, ra := range ras {
		if ra.Origin.IsLink() {
			out = append(out, fmt.Sprintf("%d:%d@%d", ra.UserID, ra.RoleID, ra.Origin.LinkID))
		}
	}
	return out
}

func (f *fixture) state() testutil.State {
	f.t.Helper()
	st, err := testutil.Capture(f.ctx, f.store)
	require.NoError(f.t, err)
	return st
}

func (f *fixture) requireInvariant() {
	f.t.Helper()
	violations, err := testutil.CheckInvariant(f.ctx, f.store, f.policy.Current().IsRoleExcluded, f.eng.Enabled())
	require.NoError(f.t, err)
	require.Empty(f.t, violations)
}

func fmtMember(user domain.UserID, link domain.LinkID) string {
	return fmt.Sprintf("%d@%d", user, link)
}

func fmtRole(user domain.UserID, role domain.RoleID, link domain.LinkID) string {
	return fmt.Sprintf("%d:%d@%d", user, role, link)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
