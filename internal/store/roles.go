package store

import (
	"context"
	"fmt"

	"github.com/roach88/courselink/internal/domain"
)

// Assign inserts a role assignment; an existing identical row is a no-op.
func (s *Store) Assign(ctx context.Context, ra domain.RoleAssignment) (bool, error) {
	if err := ra.Origin.Validate(); err != nil {
		return false, fmt.Errorf("assign role %d to user %d: %w", ra.RoleID, ra.UserID, err)
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO role_assignments (user_id, role_id, context_level, instance_id, component, link_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, role_id, context_level, instance_id, component, link_id) DO NOTHING
	`,
		int64(ra.UserID),
		int64(ra.RoleID),
		int(ra.Context.Level),
		ra.Context.InstanceID,
		ra.Origin.Component,
		int64(ra.Origin.LinkID),
	)
	if err != nil {
		return false, fmt.Errorf("assign role %d to user %d: %w", ra.RoleID, ra.UserID, err)
	}
	return changed(result)
}

// Unassign deletes exactly the row identified by ra, origin included.
func (s *Store) Unassign(ctx context.Context, ra domain.RoleAssignment) (bool, error) {
	if err := ra.Origin.Validate(); err != nil {
		return false, fmt.Errorf("unassign role %d from user %d: %w", ra.RoleID, ra.UserID, err)
	}
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM role_assignments
		WHERE user_id = ? AND role_id = ? AND context_level = ? AND instance_id = ?
			AND component = ? AND link_id = ?
	`,
		int64(ra.UserID),
		int64(ra.RoleID),
		int(ra.Context.Level),
		ra.Context.InstanceID,
		ra.Origin.Component,
		int64(ra.Origin.LinkID),
	)
	if err != nil {
		return false, fmt.Errorf("unassign role %d from user %d: %w", ra.RoleID, ra.UserID, err)
	}
	return changed(result)
}

// HasForeignAssignment reports whether user holds role at ctx through any
// mechanism other than this engine.
func (s *Store) HasForeignAssignment(ctx context.Context, user domain.UserID, role domain.RoleID, at domain.Context) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM role_assignments
			WHERE user_id = ? AND role_id = ? AND context_level = ? AND instance_id = ? AND component <> ?
		)
	`, int64(user), int64(role), int(at.Level), at.InstanceID, domain.LinkComponent).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query foreign assignment: %w", err)
	}
	return exists != 0, nil
}

// ListForeignRoles returns the distinct roles user holds at ctx through
// foreign mechanisms.
func (s *Store) ListForeignRoles(ctx context.Context, user domain.UserID, at domain.Context) ([]domain.RoleID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT role_id FROM role_assignments
		WHERE user_id = ? AND context_level = ? AND instance_id = ? AND component <> ?
		ORDER BY role_id ASC
	`, int64(user), int(at.Level), at.InstanceID, domain.LinkComponent)
	if err != nil {
		return nil, fmt.Errorf("query foreign roles: %w", err)
	}
	defer rows.Close()

	out := []domain.RoleID{}
	for rows.Next() {
		var r domain.RoleID
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return out, nil
}

// ListAssignments returns every assignment at ctx.
func (s *Store) ListAssignments(ctx context.Context, at domain.Context) ([]domain.RoleAssignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, role_id, context_level, instance_id, component, link_id
		FROM role_assignments
		WHERE context_level = ? AND instance_id = ?
		ORDER BY user_id ASC, role_id ASC, component ASC, link_id ASC
	`, int(at.Level), at.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	out := []domain.RoleAssignment{}
	for rows.Next() {
		var ra domain.RoleAssignment
		var component string
		var linkID int64
		if err := rows.Scan(&ra.UserID, &ra.RoleID, &ra.Context.Level, &ra.Context.InstanceID, &component, &linkID); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		ra.Origin = domain.OriginFromRow(component, linkID)
		out = append(out, ra)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return out, nil
}

// DesiredLinkRoles joins enabled links with the foreign course-level role
// assignments of their child, keeping only users who are also foreign
// members of the child.
func (s *Store) DesiredLinkRoles(ctx context.Context, scope domain.Scope) ([]domain.LinkRole, error) {
	return s.queryLinkRoles(ctx, `
		SELECT DISTINCT ra.user_id, ra.role_id, l.id, l.parent_course_id
		FROM link_instances l
		JOIN role_assignments ra
			ON ra.context_level = ?1 AND ra.instance_id = l.child_course_id AND ra.component <> ?2
		WHERE l.status = ?3
			AND (?4 = 0 OR l.id = ?4)
			AND (?5 = 0 OR l.parent_course_id = ?5)
			AND EXISTS (
				SELECT 1 FROM memberships m
				WHERE m.user_id = ra.user_id AND m.course_id = l.child_course_id AND m.component <> ?2
			)
		ORDER BY l.id ASC, ra.user_id ASC, ra.role_id ASC
	`, int(domain.LevelCourse), domain.LinkComponent, int(domain.LinkEnabled), int64(scope.LinkID), int64(scope.ParentCourseID))
}

// CurrentLinkRoles scans link-tagged course-level assignments.
func (s *Store) CurrentLinkRoles(ctx context.Context, scope domain.Scope) ([]domain.LinkRole, error) {
	return s.queryLinkRoles(ctx, `
		SELECT user_id, role_id, link_id, instance_id
		FROM role_assignments
		WHERE component = ?1 AND context_level = ?2
			AND (?3 = 0 OR link_id = ?3)
			AND (?4 = 0 OR instance_id = ?4)
		ORDER BY link_id ASC, user_id ASC, role_id ASC
	`, domain.LinkComponent, int(domain.LevelCourse), int64(scope.LinkID), int64(scope.ParentCourseID))
}

func (s *Store) queryLinkRoles(ctx context.Context, query string, args ...any) ([]domain.LinkRole, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query link roles: %w", err)
	}
	defer rows.Close()

	out := []domain.LinkRole{}
	for rows.Next() {
		var r domain.LinkRole
		if err := rows.Scan(&r.UserID, &r.RoleID, &r.LinkID, &r.ParentCourseID); err != nil {
			return nil, fmt.Errorf("scan link role: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link roles: %w", err)
	}
	return out, nil
}
