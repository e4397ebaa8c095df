package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint would be violated
	ErrConflict = errors.New("conflict")
	// ErrInvalidReference is returned when a related record does not exist
	ErrInvalidReference = errors.New("invalid reference")
	// ErrInvalid is returned when a record fails validation
	ErrInvalid = errors.New("invalid")
	// ErrInvalidQuery is returned for unknown filter or ordering columns
	ErrInvalidQuery = errors.New("invalid query")
)
