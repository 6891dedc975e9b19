package lifecycle

import "errors"

var (
	// ErrUnauthorized means the caller is not assigned to the order's branch.
	ErrUnauthorized = errors.New("not authorized for branch")
	// ErrPrecondition wraps a human-readable reason the caller must fix before retrying.
	ErrPrecondition = errors.New("precondition failed")
	// ErrNotFound means the order or item no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned by stores when a uniqueness rule rejects a write.
	ErrConflict = errors.New("conflict")
	// ErrStore wraps failures of the primary mutation.
	ErrStore = errors.New("store failure")
)
