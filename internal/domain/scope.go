package domain

import "fmt"

// Scope restricts reconciliation. The zero value covers every link.
type Scope struct {
	LinkID         LinkID
	ParentCourseID CourseID
}

// ScopeAll covers every link instance.
func ScopeAll() Scope { return Scope{} }

// ScopeLink covers a single link instance.
func ScopeLink(id LinkID) Scope { return Scope{LinkID: id} }

// ScopeCourse covers every link whose parent is course.
func ScopeCourse(course CourseID) Scope { return Scope{ParentCourseID: course} }

// IsAll reports whether the scope is unrestricted.
func (s Scope) IsAll() bool { return s.LinkID == 0 && s.ParentCourseID == 0 }

// Includes reports whether a link with the given id and parent is in scope.
func (s Scope) Includes(link LinkID, parent CourseID) bool {
	if s.LinkID != 0 && s.LinkID != link {
		return false
	}
	if s.ParentCourseID != 0 && s.ParentCourseID != parent {
		return false
	}
	return true
}

func (s Scope) String() string {
	switch {
	case s.LinkID != 0:
		return fmt.Sprintf("link:%d", s.LinkID)
	case s.ParentCourseID != 0:
		return fmt.Sprintf("course:%d", s.ParentCourseID)
	default:
		return "all"
	}
}
