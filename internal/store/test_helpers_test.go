package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/courselink/internal/domain"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedCourses inserts visible courses with the given ids.
func seedCourses(t *testing.T, s *Store, ids ...domain.CourseID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.UpsertCourse(context.Background(), domain.Course{
			ID:        id,
			ShortName: fmt.Sprintf("C%d", id),
			FullName:  fmt.Sprintf("Course %d", id),
			Visible:   true,
		}))
	}
}

// seedLink creates an enabled link child -> parent.
func seedLink(t *testing.T, s *Store, child, parent domain.CourseID) domain.LinkInstance {
	t.Helper()
	link, err := s.CreateLink(context.Background(), domain.LinkInstance{
		ChildCourseID:  child,
		ParentCourseID: parent,
	})
	require.NoError(t, err)
	return link
}

func enrol(t *testing.T, s *Store, user domain.UserID, course domain.CourseID, origin domain.Origin) {
	t.Helper()
	_, err := s.Enrol(context.Background(), domain.Membership{UserID: user, CourseID: course, Origin: origin})
	require.NoError(t, err)
}

func assign(t *testing.T, s *Store, user domain.UserID, role domain.RoleID, course domain.CourseID, origin domain.Origin) {
	t.Helper()
	_, err := s.Assign(context.Background(), domain.RoleAssignment{
		UserID:  user,
		RoleID:  role,
		Context: domain.CourseContext(course),
		Origin:  origin,
	})
	require.NoError(t, err)
}
