package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the referenced trip or group does not exist
	ErrNotFound = errors.New("not found")

	// ErrStateConflict is returned when an operation's precondition on the
	// current status fails. It is always checked immediately before the
	// mutating write so concurrent racers cannot both commit.
	ErrStateConflict = errors.New("operation conflicts with current status")

	// ErrUnauthorized is returned when the actor lacks the required role.
	// Checked before any state is touched.
	ErrUnauthorized = errors.New("actor lacks required role")
)

// ValidationError reports a rejected submission field. No side effects occur.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateError signals that an exact-duplicate trip already exists in a
// non-terminal state. It carries the existing trip's ID so the caller can
// redirect instead of retrying.
type DuplicateError struct {
	ExistingTripID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate trip request, existing trip %s", e.ExistingTripID)
}
