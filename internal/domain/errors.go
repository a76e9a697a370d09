package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups for ids that do not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateLink is returned when a child/parent pair is already linked.
var ErrDuplicateLink = errors.New("duplicate link")

// InvalidLinkError reports a link definition that can never be valid.
type InvalidLinkError struct {
	Child  CourseID
	Parent CourseID
	Reason string
}

func (e *InvalidLinkError) Error() string {
	return fmt.Sprintf("invalid link %d -> %d: %s", e.Child, e.Parent, e.Reason)
}

// IsInvalidLink reports whether err is (or wraps) an InvalidLinkError or a duplicate link.
func IsInvalidLink(err error) bool {
	var ile *InvalidLinkError
	return errors.As(err, &ile) || errors.Is(err, ErrDuplicateLink)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
