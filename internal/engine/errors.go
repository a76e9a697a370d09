package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/courselink/internal/domain"
)

// RuntimeError represents an error detected while handling an event or
// running a reconciliation.
//
// Per-mutation failures are never returned as RuntimeErrors: they are
// logged, counted and left for the next reconciliation. RuntimeErrors
// cover failures that prevent an operation from starting at all.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// LinkID identifies the affected link, if any.
	LinkID domain.LinkID

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidLink indicates a link definition that can never be valid.
	ErrCodeInvalidLink RuntimeErrorCode = "INVALID_LINK"

	// ErrCodeLinkNotFound indicates a scoped operation named a missing link.
	ErrCodeLinkNotFound RuntimeErrorCode = "LINK_NOT_FOUND"

	// ErrCodeCourseNotFound indicates a link endpoint that does not exist.
	ErrCodeCourseNotFound RuntimeErrorCode = "COURSE_NOT_FOUND"

	// ErrCodeDuplicateLink indicates a child-parent pair that is already linked.
	ErrCodeDuplicateLink RuntimeErrorCode = "DUPLICATE_LINK"

	// ErrCodeStoreFailure indicates a read needed to plan work failed.
	ErrCodeStoreFailure RuntimeErrorCode = "STORE_FAILURE"

	// ErrCodeInvalidEvent indicates an event of unknown kind.
	ErrCodeInvalidEvent RuntimeErrorCode = "INVALID_EVENT"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.LinkID != 0 {
		msg = fmt.Sprintf("%s (link=%d)", msg, e.LinkID)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsInvalidLink returns true if the error reports an invalid link definition.
func IsInvalidLink(err error) bool {
	return hasCode(err, ErrCodeInvalidLink) || domain.IsInvalidLink(err)
}

// IsLinkNotFound returns true if the error reports a missing link.
func IsLinkNotFound(err error) bool {
	return hasCode(err, ErrCodeLinkNotFound)
}

// IsCourseNotFound returns true if the error reports a missing link endpoint.
func IsCourseNotFound(err error) bool {
	return hasCode(err, ErrCodeCourseNotFound)
}

// IsDuplicateLink returns true if the error reports an already linked pair.
func IsDuplicateLink(err error) bool {
	return hasCode(err, ErrCodeDuplicateLink) || errors.Is(err, domain.ErrDuplicateLink)
}

// IsStoreFailure returns true if the error is a store read failure.
func IsStoreFailure(err error) bool {
	return hasCode(err, ErrCodeStoreFailure)
}

func newStoreError(message string, err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeStoreFailure, Message: message, Err: err}
}

func newLinkNotFoundError(id domain.LinkID, err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeLinkNotFound, Message: "link does not exist", LinkID: id, Err: err}
}

func newInvalidLinkError(id domain.LinkID, err error) *RuntimeError {
	return &RuntimeError{Code: ErrCodeInvalidLink, Message: "link definition is invalid", LinkID: id, Err: err}
}
