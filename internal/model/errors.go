package model

import "errors"

// Domain error kinds. All four business kinds are expected, user-facing
// outcomes and are never retried; ErrUnavailable is the generic storage
// failure left after the repository layer's single retry.
var (
	// ErrConflict marks an invariant violation: a second running timer for
	// the same user, or a duplicate (user, task, day) work-day key.
	ErrConflict = errors.New("conflict")

	// ErrNotFound marks an operation on a timer, session or work day that
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInterval marks a non-positive or absurd worked duration.
	ErrInvalidInterval = errors.New("invalid interval")

	// ErrNotPermitted marks cross-user access to another user's records.
	ErrNotPermitted = errors.New("not permitted")

	// ErrUnavailable marks a storage failure that persisted through the
	// retry. Distinct from the business kinds above.
	ErrUnavailable = errors.New("storage unavailable")
)
