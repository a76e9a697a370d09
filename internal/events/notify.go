package events

import (
	"context"

	"github.com/roach88/courselink/internal/domain"
)

// Backend is a store that also owns the course table.
type Backend interface {
	domain.Stores
	UpsertCourse(ctx context.Context, c domain.Course) error
	DeleteCourse(ctx context.Context, id domain.CourseID) error
}

// NotifyingStore publishes an event after every write that changed state.
// Reads pass straight through to the embedded Backend.
type NotifyingStore struct {
	Backend
	pub Publisher
}

var _ Backend = (*NotifyingStore)(nil)

// NewNotifyingStore wraps b, publishing to pub.
func NewNotifyingStore(b Backend, pub Publisher) *NotifyingStore {
	return &NotifyingStore{Backend: b, pub: pub}
}

func (s *NotifyingStore) Enrol(ctx context.Context, m domain.Membership) (bool, error) {
	changed, err := s.Backend.Enrol(ctx, m)
	if err == nil && changed {
		s.pub.Publish(domain.MemberAddedEvent(m.UserID, m.CourseID, m.Origin))
	}
	return changed, err
}

func (s *NotifyingStore) Unenrol(ctx context.Context, m domain.Membership) (bool, error) {
	changed, err := s.Backend.Unenrol(ctx, m)
	if err == nil && changed {
		s.pub.Publish(domain.MemberRemovedEvent(m.UserID, m.CourseID, m.Origin))
	}
	return changed, err
}

func (s *NotifyingStore) Assign(ctx context.Context, ra domain.RoleAssignment) (bool, error) {
	changed, err := s.Backend.Assign(ctx, ra)
	if err == nil && changed {
		s.pub.Publish(domain.RoleGrantedEvent(ra.UserID, ra.RoleID, ra.Context, ra.Origin))
	}
	return changed, err
}

func (s *NotifyingStore) Unassign(ctx context.Context, ra domain.RoleAssignment) (bool, error) {
	changed, err := s.Backend.Unassign(ctx, ra)
	if err == nil && changed {
		s.pub.Publish(domain.RoleRevokedEvent(ra.UserID, ra.RoleID, ra.Context, ra.Origin))
	}
	return changed, err
}

// UpsertCourse publishes CourseUpdated, whether or not anything changed.
func (s *NotifyingStore) UpsertCourse(ctx context.Context, c domain.Course) error {
	if err := s.Backend.UpsertCourse(ctx, c); err != nil {
		return err
	}
	s.pub.Publish(domain.CourseUpdatedEvent(c.ID))
	return nil
}

// DeleteCourse publishes CourseRemoved after the course and its records
// are gone.
func (s *NotifyingStore) DeleteCourse(ctx context.Context, id domain.CourseID) error {
	if err := s.Backend.DeleteCourse(ctx, id); err != nil {
		return err
	}
	s.pub.Publish(domain.CourseRemovedEvent(id))
	return nil
}
