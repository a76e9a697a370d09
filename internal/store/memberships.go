package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/courselink/internal/domain"
)

// Enrol inserts a membership. Uses ON CONFLICT DO NOTHING for idempotency:
// an existing row reports changed=false.
func (s *Store) Enrol(ctx context.Context, m domain.Membership) (bool, error) {
	if err := m.Origin.Validate(); err != nil {
		return false, fmt.Errorf("enrol user %d in course %d: %w", m.UserID, m.CourseID, err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO memberships (user_id, course_id, component, link_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, course_id, component, link_id) DO NOTHING
	`, int64(m.UserID), int64(m.CourseID), m.Origin.Component, int64(m.Origin.LinkID))
	if err != nil {
		return false, fmt.Errorf("enrol user %d in course %d: %w", m.UserID, m.CourseID, err)
	}
	return changed(result)
}

// Unenrol deletes a membership. For link-tagged memberships the roles the
// same link assigned to the user in that course are removed in the same
// transaction.
func (s *Store) Unenrol(ctx context.Context, m domain.Membership) (bool, error) {
	if err := m.Origin.Validate(); err != nil {
		return false, fmt.Errorf("unenrol user %d from course %d: %w", m.UserID, m.CourseID, err)
	}

	var removed bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM memberships
			WHERE user_id = ? AND course_id = ? AND component = ? AND link_id = ?
		`, int64(m.UserID), int64(m.CourseID), m.Origin.Component, int64(m.Origin.LinkID))
		if err != nil {
			return err
		}
		if removed, err = changed(result); err != nil {
			return err
		}
		if !m.Origin.IsLink() {
			return nil
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM role_assignments
			WHERE user_id = ? AND context_level = ? AND instance_id = ? AND component = ? AND link_id = ?
		`, int64(m.UserID), int(domain.LevelCourse), int64(m.CourseID), domain.LinkComponent, int64(m.Origin.LinkID))
		return err
	})
	if err != nil {
		return false, fmt.Errorf("unenrol user %d from course %d: %w", m.UserID, m.CourseID, err)
	}
	return removed, nil
}

// HasForeignMembership reports whether user is enrolled in course by any
// mechanism other than this engine.
func (s *Store) HasForeignMembership(ctx context.Context, user domain.UserID, course domain.CourseID) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM memberships
			WHERE user_id = ? AND course_id = ? AND component <> ?
		)
	`, int64(user), int64(course), domain.LinkComponent).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query foreign membership: %w", err)
	}
	return exists != 0, nil
}

// ListMemberships returns every membership in course.
func (s *Store) ListMemberships(ctx context.Context, course domain.CourseID) ([]domain.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, course_id, component, link_id FROM memberships
		WHERE course_id = ?
		ORDER BY user_id ASC, component ASC, link_id ASC
	`, int64(course))
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	out := []domain.Membership{}
	for rows.Next() {
		var m domain.Membership
		var component string
		var linkID int64
		if err := rows.Scan(&m.UserID, &m.CourseID, &component, &linkID); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Origin = domain.OriginFromRow(component, linkID)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

// DesiredLinkMembers joins enabled links with the foreign memberships of
// their child course.
func (s *Store) DesiredLinkMembers(ctx context.Context, scope domain.Scope) ([]domain.LinkMember, error) {
	return s.queryLinkMembers(ctx, `
		SELECT DISTINCT m.user_id, l.id, l.parent_course_id
		FROM link_instances l
		JOIN memberships m
			ON m.course_id = l.child_course_id AND m.component <> ?1
		WHERE l.status = ?2
			AND (?3 = 0 OR l.id = ?3)
			AND (?4 = 0 OR l.parent_course_id = ?4)
		ORDER BY l.id ASC, m.user_id ASC
	`, domain.LinkComponent, int(domain.LinkEnabled), int64(scope.LinkID), int64(scope.ParentCourseID))
}

// CurrentLinkMembers scans link-tagged memberships. Rows whose link no
// longer exists are included so reconciliation can remove them.
func (s *Store) CurrentLinkMembers(ctx context.Context, scope domain.Scope) ([]domain.LinkMember, error) {
	return s.queryLinkMembers(ctx, `
		SELECT user_id, link_id, course_id
		FROM memberships
		WHERE component = ?1
			AND (?2 = 0 OR link_id = ?2)
			AND (?3 = 0 OR course_id = ?3)
		ORDER BY link_id ASC, user_id ASC
	`, domain.LinkComponent, int64(scope.LinkID), int64(scope.ParentCourseID))
}

func (s *Store) queryLinkMembers(ctx context.Context, query string, args ...any) ([]domain.LinkMember, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query link members: %w", err)
	}
	defer rows.Close()

	out := []domain.LinkMember{}
	for rows.Next() {
		var m domain.LinkMember
		if err := rows.Scan(&m.UserID, &m.LinkID, &m.ParentCourseID); err != nil {
			return nil, fmt.Errorf("scan link member: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link members: %w", err)
	}
	return out, nil
}

func changed(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
