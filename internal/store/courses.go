package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/courselink/internal/domain"
)

// UpsertCourse creates or updates a course row. Courses belong to the
// platform; this is how the platform side (CLI, harness) mirrors them in.
func (s *Store) UpsertCourse(ctx context.Context, c domain.Course) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (id, short_name, full_name, visible)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			short_name = excluded.short_name,
			full_name  = excluded.full_name,
			visible    = excluded.visible
	`, int64(c.ID), domain.NormalizeName(c.ShortName), domain.NormalizeName(c.FullName), boolToInt(c.Visible))
	if err != nil {
		return fmt.Errorf("upsert course %d: %w", c.ID, err)
	}
	return nil
}

// DeleteCourse removes a course together with the memberships and
// course-level role assignments recorded in it, as the platform would.
// Links touching the course are left for the engine's CourseRemoved path.
func (s *Store) DeleteCourse(ctx context.Context, id domain.CourseID) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE course_id = ?`, int64(id)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM role_assignments WHERE context_level = ? AND instance_id = ?
		`, int(domain.LevelCourse), int64(id)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM courses WHERE id = ?`, int64(id))
		return err
	})
	if err != nil {
		return fmt.Errorf("delete course %d: %w", id, err)
	}
	return nil
}

// GetCourse returns the course with id or domain.ErrNotFound.
func (s *Store) GetCourse(ctx context.Context, id domain.CourseID) (domain.Course, error) {
	var c domain.Course
	var visible int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, short_name, full_name, visible FROM courses WHERE id = ?
	`, int64(id)).Scan(&c.ID, &c.ShortName, &c.FullName, &visible)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Course{}, fmt.Errorf("course %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Course{}, fmt.Errorf("query course %d: %w", id, err)
	}
	c.Visible = visible != 0
	return c, nil
}

// ListCourses returns every course ordered by id.
func (s *Store) ListCourses(ctx context.Context) ([]domain.Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, short_name, full_name, visible FROM courses ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	courses := []domain.Course{}
	for rows.Next() {
		var c domain.Course
		var visible int
		if err := rows.Scan(&c.ID, &c.ShortName, &c.FullName, &visible); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		c.Visible = visible != 0
		courses = append(courses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return courses, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
