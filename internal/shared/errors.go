package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a malformed or rejected request payload.
	ErrInvalidInput = errors.New("invalid input")
)
