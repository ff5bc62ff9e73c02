package errors

import "errors"

var (
	ErrNotFound = errors.New("confirmation not found")

	ErrInvalidID = errors.New("invalid confirmation ID format")

	// ErrDuplicate is a second row for the same listing and passenger.
	ErrDuplicate = errors.New("confirmation already exists for this listing")
)
