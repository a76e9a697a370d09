package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/courselink/internal/domain"
)

const linkColumns = `id, child_course_id, parent_course_id, status, name, created_at`

// CreateLink inserts a link and returns it with its id.
// Returns domain.ErrDuplicateLink if the child/parent pair already exists.
func (s *Store) CreateLink(ctx context.Context, link domain.LinkInstance) (domain.LinkInstance, error) {
	if err := link.Validate(); err != nil {
		return domain.LinkInstance{}, err
	}
	link.Name = domain.NormalizeName(link.Name)

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO link_instances (child_course_id, parent_course_id, status, name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		int64(link.ChildCourseID),
		int64(link.ParentCourseID),
		int(link.Status),
		link.Name,
		link.CreatedAt.Unix(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return domain.LinkInstance{}, fmt.Errorf("create link %d -> %d: %w",
				link.ChildCourseID, link.ParentCourseID, domain.ErrDuplicateLink)
		}
		return domain.LinkInstance{}, fmt.Errorf("create link: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.LinkInstance{}, fmt.Errorf("create link: last insert id: %w", err)
	}
	link.ID = domain.LinkID(id)
	return link, nil
}

// SetLinkStatus enables or disables a link.
func (s *Store) SetLinkStatus(ctx context.Context, id domain.LinkID, status domain.LinkStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE link_instances SET status = ? WHERE id = ?
	`, int(status), int64(id))
	if err != nil {
		return fmt.Errorf("set link %d status: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set link %d status: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("link %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// DeleteLink removes the link row. Missing links are not an error.
func (s *Store) DeleteLink(ctx context.Context, id domain.LinkID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM link_instances WHERE id = ?`, int64(id)); err != nil {
		return fmt.Errorf("delete link %d: %w", id, err)
	}
	return nil
}

// GetLink returns the link with id or domain.ErrNotFound.
func (s *Store) GetLink(ctx context.Context, id domain.LinkID) (domain.LinkInstance, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM link_instances WHERE id = ?`, int64(id))
	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LinkInstance{}, fmt.Errorf("link %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.LinkInstance{}, fmt.Errorf("query link %d: %w", id, err)
	}
	return link, nil
}

// ListLinks returns the links matching filter ordered by id.
func (s *Store) ListLinks(ctx context.Context, filter domain.LinkFilter) ([]domain.LinkInstance, error) {
	var where []string
	var args []any
	if filter.ChildCourseID != 0 {
		where = append(where, "child_course_id = ?")
		args = append(args, int64(filter.ChildCourseID))
	}
	if filter.ParentCourseID != 0 {
		where = append(where, "parent_course_id = ?")
		args = append(args, int64(filter.ParentCourseID))
	}
	if filter.EnabledOnly {
		where = append(where, "status = ?")
		args = append(args, int(domain.LinkEnabled))
	}

	query := `SELECT ` + linkColumns + ` FROM link_instances`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []domain.LinkInstance{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (domain.LinkInstance, error) {
	var link domain.LinkInstance
	var status int
	var created int64
	if err := row.Scan(&link.ID, &link.ChildCourseID, &link.ParentCourseID, &status, &link.Name, &created); err != nil {
		return domain.LinkInstance{}, err
	}
	link.Status = domain.LinkStatus(status)
	link.CreatedAt = time.Unix(created, 0).UTC()
	return link, nil
}
