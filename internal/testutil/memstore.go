package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/courselink/internal/domain"
)

type membershipKey struct {
	user      domain.UserID
	course    domain.CourseID
	component string
	link      domain.LinkID
}

type assignmentKey struct {
	user      domain.UserID
	role      domain.RoleID
	at        domain.Context
	component string
	link      domain.LinkID
}

// MemStore is an in-memory implementation of domain.Stores with the same
// observable semantics as the SQLite adapter. Safe for concurrent use.
type MemStore struct {
	mu          sync.Mutex
	courses     map[domain.CourseID]domain.Course
	links       map[domain.LinkID]domain.LinkInstance
	nextLink    domain.LinkID
	memberships map[membershipKey]struct{}
	assignments map[assignmentKey]struct{}
}

var _ domain.Stores = (*MemStore)(nil)

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		courses:     make(map[domain.CourseID]domain.Course),
		links:       make(map[domain.LinkID]domain.LinkInstance),
		memberships: make(map[membershipKey]struct{}),
		assignments: make(map[assignmentKey]struct{}),
	}
}

// UpsertCourse creates or replaces a course.
func (s *MemStore) UpsertCourse(_ context.Context, c domain.Course) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ShortName = domain.NormalizeName(c.ShortName)
	c.FullName = domain.NormalizeName(c.FullName)
	s.courses[c.ID] = c
	return nil
}

// DeleteCourse removes a course with its memberships and course-level roles.
func (s *MemStore) DeleteCourse(_ context.Context, id domain.CourseID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.courses, id)
	for k := range s.memberships {
		if k.course == id {
			delete(s.memberships, k)
		}
	}
	for k := range s.assignments {
		if k.at == domain.CourseContext(id) {
			delete(s.assignments, k)
		}
	}
	return nil
}

func (s *MemStore) GetCourse(_ context.Context, id domain.CourseID) (domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.courses[id]
	if !ok {
		return domain.Course{}, fmt.Errorf("course %d: %w", id, domain.ErrNotFound)
	}
	return c, nil
}

func (s *MemStore) ListCourses(_ context.Context) ([]domain.Course, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) CreateLink(_ context.Context, link domain.LinkInstance) (domain.LinkInstance, error) {
	if err := link.Validate(); err != nil {
		return domain.LinkInstance{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.links {
		if existing.ChildCourseID == link.ChildCourseID && existing.ParentCourseID == link.ParentCourseID {
			return domain.LinkInstance{}, fmt.Errorf("create link %d -> %d: %w",
				link.ChildCourseID, link.ParentCourseID, domain.ErrDuplicateLink)
		}
	}
	s.nextLink++
	link.ID = s.nextLink
	link.Name = domain.NormalizeName(link.Name)
	s.links[link.ID] = link
	return link, nil
}

// PutLink stores a link verbatim, bypassing validation. Used to simulate
// out-of-band edits that reconciliation must tolerate.
func (s *MemStore) PutLink(link domain.LinkInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if link.ID > s.nextLink {
		s.nextLink = link.ID
	}
	s.links[link.ID] = link
}

func (s *MemStore) SetLinkStatus(_ context.Context, id domain.LinkID, status domain.LinkStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return fmt.Errorf("link %d: %w", id, domain.ErrNotFound)
	}
	link.Status = status
	s.links[id] = link
	return nil
}

func (s *MemStore) DeleteLink(_ context.Context, id domain.LinkID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, id)
	return nil
}

func (s *MemStore) GetLink(_ context.Context, id domain.LinkID) (domain.LinkInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[id]
	if !ok {
		return domain.LinkInstance{}, fmt.Errorf("link %d: %w", id, domain.ErrNotFound)
	}
	return link, nil
}

func (s *MemStore) ListLinks(_ context.Context, filter domain.LinkFilter) ([]domain.LinkInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLinksLocked(filter), nil
}

func (s *MemStore) listLinksLocked(filter domain.LinkFilter) []domain.LinkInstance {
	out := []domain.LinkInstance{}
	for _, l := range s.links {
		if filter.Matches(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemStore) Enrol(_ context.Context, m domain.Membership) (bool, error) {
	if err := m.Origin.Validate(); err != nil {
		return false, fmt.Errorf("enrol user %d in course %d: %w", m.UserID, m.CourseID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := membershipKey{m.UserID, m.CourseID, m.Origin.Component, m.Origin.LinkID}
	if _, ok := s.memberships[k]; ok {
		return false, nil
	}
	s.memberships[k] = struct{}{}
	return true, nil
}

func (s *MemStore) Unenrol(_ context.Context, m domain.Membership) (bool, error) {
	if err := m.Origin.Validate(); err != nil {
		return false, fmt.Errorf("unenrol user %d from course %d: %w", m.UserID, m.CourseID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := membershipKey{m.UserID, m.CourseID, m.Origin.Component, m.Origin.LinkID}
	_, existed := s.memberships[k]
	delete(s.memberships, k)
	if m.Origin.IsLink() {
		for ak := range s.assignments {
			if ak.user == m.UserID && ak.at == domain.CourseContext(m.CourseID) &&
				ak.component == domain.LinkComponent && ak.link == m.Origin.LinkID {
				delete(s.assignments, ak)
			}
		}
	}
	return existed, nil
}

func (s *MemStore) HasForeignMembership(_ context.Context, user domain.UserID, course domain.CourseID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasForeignMembershipLocked(user, course), nil
}

func (s *MemStore) hasForeignMembershipLocked(user domain.UserID, course domain.CourseID) bool {
	for k := range s.memberships {
		if k.user == user && k.course == course && k.component != domain.LinkComponent {
			return true
		}
	}
	return false
}

func (s *MemStore) ListMemberships(_ context.Context, course domain.CourseID) ([]domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Membership{}
	for k := range s.memberships {
		if k.course == course {
			out = append(out, domain.Membership{UserID: k.user, CourseID: k.course, Origin: domain.OriginFromRow(k.component, int64(k.link))})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Origin.Component != b.Origin.Component {
			return a.Origin.Component < b.Origin.Component
		}
		return a.Origin.LinkID < b.Origin.LinkID
	})
	return out, nil
}

func (s *MemStore) DesiredLinkMembers(_ context.Context, scope domain.Scope) ([]domain.LinkMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[domain.LinkMember]struct{})
	out := []domain.LinkMember{}
	for _, l := range s.listLinksLocked(domain.LinkFilter{EnabledOnly: true}) {
		if !scope.Includes(l.ID, l.ParentCourseID) {
			continue
		}
		for k := range s.memberships {
			if k.course != l.ChildCourseID || k.component == domain.LinkComponent {
				continue
			}
			m := domain.LinkMember{UserID: k.user, LinkID: l.ID, ParentCourseID: l.ParentCourseID}
			if _, dup := seen[m]; !dup {
				seen[m] = struct{}{}
				out = append(out, m)
			}
		}
	}
	sortLinkMembers(out)
	return out, nil
}

func (s *MemStore) CurrentLinkMembers(_ context.Context, scope domain.Scope) ([]domain.LinkMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.LinkMember{}
	for k := range s.memberships {
		if k.component != domain.LinkComponent || !scope.Includes(k.link, k.course) {
			continue
		}
		out = append(out, domain.LinkMember{UserID: k.user, LinkID: k.link, ParentCourseID: k.course})
	}
	sortLinkMembers(out)
	return out, nil
}

func (s *MemStore) Assign(_ context.Context, ra domain.RoleAssignment) (bool, error) {
	if err := ra.Origin.Validate(); err != nil {
		return false, fmt.Errorf("assign role %d to user %d: %w", ra.RoleID, ra.UserID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := assignmentKey{ra.UserID, ra.RoleID, ra.Context, ra.Origin.Component, ra.Origin.LinkID}
	if _, ok := s.assignments[k]; ok {
		return false, nil
	}
	s.assignments[k] = struct{}{}
	return true, nil
}

func (s *MemStore) Unassign(_ context.Context, ra domain.RoleAssignment) (bool, error) {
	if err := ra.Origin.Validate(); err != nil {
		return false, fmt.Errorf("unassign role %d from user %d: %w", ra.RoleID, ra.UserID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := assignmentKey{ra.UserID, ra.RoleID, ra.Context, ra.Origin.Component, ra.Origin.LinkID}
	_, existed := s.assignments[k]
	delete(s.assignments, k)
	return existed, nil
}

func (s *MemStore) HasForeignAssignment(_ context.Context, user domain.UserID, role domain.RoleID, at domain.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.assignments {
		if k.user == user && k.role == role && k.at == at && k.component != domain.LinkComponent {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemStore) ListForeignRoles(_ context.Context, user domain.UserID, at domain.Context) ([]domain.RoleID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[domain.RoleID]struct{})
	out := []domain.RoleID{}
	for k := range s.assignments {
		if k.user != user || k.at != at || k.component == domain.LinkComponent {
			continue
		}
		if _, dup := seen[k.role]; !dup {
			seen[k.role] = struct{}{}
			out = append(out, k.role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *MemStore) ListAssignments(_ context.Context, at domain.Context) ([]domain.RoleAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.RoleAssignment{}
	for k := range s.assignments {
		if k.at == at {
			out = append(out, domain.RoleAssignment{
				UserID: k.user, RoleID: k.role, Context: k.at,
				Origin: domain.OriginFromRow(k.component, int64(k.link)),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.RoleID != b.RoleID {
			return a.RoleID < b.RoleID
		}
		if a.Origin.Component != b.Origin.Component {
			return a.Origin.Component < b.Origin.Component
		}
		return a.Origin.LinkID < b.Origin.LinkID
	})
	return out, nil
}

func (s *MemStore) DesiredLinkRoles(_ context.Context, scope domain.Scope) ([]domain.LinkRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[domain.LinkRole]struct{})
	out := []domain.LinkRole{}
	for _, l := range s.listLinksLocked(domain.LinkFilter{EnabledOnly: true}) {
		if !scope.Includes(l.ID, l.ParentCourseID) {
			continue
		}
		childCtx := domain.CourseContext(l.ChildCourseID)
		for k := range s.assignments {
			if k.at != childCtx || k.component == domain.LinkComponent {
				continue
			}
			if !s.hasForeignMembershipLocked(k.user, l.ChildCourseID) {
				continue
			}
			r := domain.LinkRole{UserID: k.user, RoleID: k.role, LinkID: l.ID, ParentCourseID: l.ParentCourseID}
			if _, dup := seen[r]; !dup {
				seen[r] = struct{}{}
				out = append(out, r)
			}
		}
	}
	sortLinkRoles(out)
	return out, nil
}

func (s *MemStore) CurrentLinkRoles(_ context.Context, scope domain.Scope) ([]domain.LinkRole, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.LinkRole{}
	for k := range s.assignments {
		if k.component != domain.LinkComponent || k.at.Level != domain.LevelCourse {
			continue
		}
		course := domain.CourseID(k.at.InstanceID)
		if !scope.Includes(k.link, course) {
			continue
		}
		out = append(out, domain.LinkRole{UserID: k.user, RoleID: k.role, LinkID: k.link, ParentCourseID: course})
	}
	sortLinkRoles(out)
	return out, nil
}

func sortLinkMembers(ms []domain.LinkMember) {
	sort.Slice(ms, func(i, j int) bool {
		if ms[i].LinkID != ms[j].LinkID {
			return ms[i].LinkID < ms[j].LinkID
		}
		return ms[i].UserID < ms[j].UserID
	})
}

func sortLinkRoles(rs []domain.LinkRole) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].LinkID != rs[j].LinkID {
			return rs[i].LinkID < rs[j].LinkID
		}
		if rs[i].UserID != rs[j].UserID {
			return rs[i].UserID < rs[j].UserID
		}
		return rs[i].RoleID < rs[j].RoleID
	})
}
