// Package errs defines the error kinds surfaced by the mimir stores.
//
// Stores wrap these sentinels with context ("task: not found: T1"), so callers
// test the kind with errors.Is and print the wrapped message.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a referenced project, task, branch or commit that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName reports a write that would violate a uniqueness constraint.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrForbidden reports an operation the model never allows, such as deleting "main".
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidReference reports a supplied commit or parent id that does not resolve
	// to something usable in the current scope.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrConflict reports a lost compare-and-swap on a branch head. The caller may retry.
	ErrConflict = errors.New("conflict")
)

// NotFound wraps ErrNotFound with a formatted subject.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Duplicate wraps ErrDuplicateName with a formatted subject.
func Duplicate(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDuplicateName, fmt.Sprintf(format, args...))
}

// Forbidden wraps ErrForbidden with a formatted reason.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// InvalidReference wraps ErrInvalidReference with a formatted subject.
func InvalidReference(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidReference, fmt.Sprintf(format, args...))
}

// UnresolvedReference reports a reference that does not resolve at all. It
// matches both ErrInvalidReference and ErrNotFound.
func UnresolvedReference(format string, args ...any) error {
	return fmt.Errorf("%w: %w: %s", ErrInvalidReference, ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflict wraps ErrConflict with a formatted subject.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Kind returns the first error kind err matches, or nil if none match.
func Kind(err error) error {
	for _, k := range []error{ErrConflict, ErrInvalidReference, ErrNotFound, ErrDuplicateName, ErrForbidden} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
