// Package links manages link instances on behalf of administrators:
// validated creation with an immediate first sync, status changes,
// removal, and the target queries that drive the "add link" form.
package links

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/courselink/internal/domain"
	"github.com/roach88/courselink/internal/engine"
)

// Clock provides the creation timestamp of new links.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Service creates, updates and removes links.
type Service struct {
	courses     domain.CourseLookup
	links       domain.LinkRegistry
	engine      *engine.Engine
	clock       Clock
	allowHidden bool
	logger      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for CreatedAt. Default: wall clock.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithHiddenTargets allows linking hidden courses regardless of the viewer.
func WithHiddenTargets(allow bool) Option {
	return func(s *Service) {
		s.allowHidden = allow
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service. eng must run over the same stores.
func NewService(courses domain.CourseLookup, links domain.LinkRegistry, eng *engine.Engine, opts ...Option) *Service {
	s := &Service{
		courses: courses,
		links:   links,
		engine:  eng,
		clock:   systemClock{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create links child into parent and runs the first sync of the new link.
//
// If the first sync fails the link is kept and the error returned; the
// periodic reconciliation completes it.
func (s *Service) Create(ctx context.Context, parent, child domain.CourseID, name string) (domain.LinkInstance, *engine.Result, error) {
	link := domain.LinkInstance{
		ChildCourseID:  child,
		ParentCourseID: parent,
		Status:         domain.LinkEnabled,
		Name:           name,
		CreatedAt:      s.clock.Now().UTC().Truncate(time.Second),
	}
	if err := link.Validate(); err != nil {
		return domain.LinkInstance{}, nil, &engine.RuntimeError{Code: engine.ErrCodeInvalidLink, Message: "cannot create link", Err: err}
	}

	if _, err := s.course(ctx, parent); err != nil {
		return domain.LinkInstance{}, nil, err
	}
	target, err := s.course(ctx, child)
	if err != nil {
		return domain.LinkInstance{}, nil, err
	}
	if !target.Visible && !s.allowHidden {
		return domain.LinkInstance{}, nil, &engine.RuntimeError{
			Code:    engine.ErrCodeInvalidLink,
			Message: "cannot create link",
			Err:     &domain.InvalidLinkError{Child: child, Parent: parent, Reason: "the linked course is hidden"},
		}
	}

	created, err := s.links.CreateLink(ctx, link)
	switch {
	case errors.Is(err, domain.ErrDuplicateLink):
		return domain.LinkInstance{}, nil, &engine.RuntimeError{Code: engine.ErrCodeDuplicateLink, Message: "courses are already linked", Err: err}
	case domain.IsInvalidLink(err):
		return domain.LinkInstance{}, nil, &engine.RuntimeError{Code: engine.ErrCodeInvalidLink, Message: "cannot create link", Err: err}
	case err != nil:
		return domain.LinkInstance{}, nil, &engine.RuntimeError{Code: engine.ErrCodeStoreFailure, Message: "create link", Err: err}
	}
	s.logger.Info("link created", "link_id", created.ID, "child_course_id", child, "parent_course_id", parent)

	res, err := s.engine.OnLinkCreated(ctx, created.ID)
	if err != nil {
		s.logger.Warn("first sync of new link failed", "link_id", created.ID, "error", err)
		return created, res, err
	}
	return created, res, nil
}

// SetStatus enables or disables a link and reconciles it, so members are
// added or pruned at once.
func (s *Service) SetStatus(ctx context.Context, id domain.LinkID, status domain.LinkStatus) (*engine.Result, error) {
	if err := s.links.SetLinkStatus(ctx, id, status); err != nil {
		if domain.IsNotFound(err) {
			return nil, &engine.RuntimeError{Code: engine.ErrCodeLinkNotFound, Message: "link does not exist", LinkID: id, Err: err}
		}
		return nil, &engine.RuntimeError{Code: engine.ErrCodeStoreFailure, Message: "set link status", LinkID: id, Err: err}
	}
	s.logger.Info("link status changed", "link_id", id, "status", status.String())
	return s.engine.Reconcile(ctx, domain.ScopeLink(id))
}

// Remove deletes a link after removing everything it owns.
func (s *Service) Remove(ctx context.Context, id domain.LinkID) error {
	return s.engine.RemoveLink(ctx, id)
}

// List returns the links into parent, or every link when parent is zero.
func (s *Service) List(ctx context.Context, parent domain.CourseID) ([]domain.LinkInstance, error) {
	return s.links.ListLinks(ctx, domain.LinkFilter{ParentCourseID: parent})
}

// ListTargets returns the courses that could be linked into parent: not the
// site course, not parent itself, not already linked, and visible unless
// hidden courses are allowed.
func (s *Service) ListTargets(ctx context.Context, parent domain.CourseID, canSeeHidden bool) ([]domain.Course, error) {
	courses, err := s.courses.ListCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	existing, err := s.links.ListLinks(ctx, domain.LinkFilter{ParentCourseID: parent})
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	linked := make(map[domain.CourseID]bool, len(existing))
	for _, l := range existing {
		linked[l.ChildCourseID] = true
	}

	targets := []domain.Course{}
	for _, c := range courses {
		switch {
		case c.ID == domain.SiteCourseID, c.ID == parent, linked[c.ID]:
		case !c.Visible && !canSeeHidden && !s.allowHidden:
		default:
			targets = append(targets, c)
		}
	}
	return targets, nil
}

// HasCreatableTarget reports whether at least one course can be linked
// into parent.
func (s *Service) HasCreatableTarget(ctx context.Context, parent domain.CourseID, canSeeHidden bool) (bool, error) {
	targets, err := s.ListTargets(ctx, parent, canSeeHidden)
	if err != nil {
		return false, err
	}
	return len(targets) > 0, nil
}

// DisplayName is the link's name, or "Course link (<linked course>)".
func (s *Service) DisplayName(ctx context.Context, link domain.LinkInstance) (string, error) {
	if link.Name != "" {
		return link.Name, nil
	}
	c, err := s.courses.GetCourse(ctx, link.ChildCourseID)
	if domain.IsNotFound(err) {
		return "Course link", nil
	}
	if err != nil {
		return "", fmt.Errorf("get course %d: %w", link.ChildCourseID, err)
	}
	return fmt.Sprintf("Course link (%s)", c.FullName), nil
}

func (s *Service) course(ctx context.Context, id domain.CourseID) (domain.Course, error) {
	c, err := s.courses.GetCourse(ctx, id)
	if domain.IsNotFound(err) {
		return domain.Course{}, &engine.RuntimeError{Code: engine.ErrCodeCourseNotFound, Message: fmt.Sprintf("course %d does not exist", id), Err: err}
	}
	if err != nil {
		return domain.Course{}, &engine.RuntimeError{Code: engine.ErrCodeStoreFailure, Message: "get course", Err: err}
	}
	return c, nil
}
