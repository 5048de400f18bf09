package repository

import "errors"

var (
	// ErrUnavailable marks transient storage failures. Retrying the whole
	// operation may succeed.
	ErrUnavailable = errors.New("storage temporarily unavailable")

	// ErrConflict is returned when a uniqueness constraint rejects a write.
	ErrConflict = errors.New("conflicting record exists")
)
