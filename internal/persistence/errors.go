package persistence

import "errors"

// Sentinel errors shared by repository implementations.
var (
	// ErrNotFound covers missing rows and, for tokens, every invalid-token
	// variant (unknown, expired, revoked, exhausted).
	ErrNotFound = errors.New("not found")

	// ErrDuplicate marks unique-constraint conflicts the caller treats as
	// already-recorded work rather than failures.
	ErrDuplicate = errors.New("duplicate")
)
