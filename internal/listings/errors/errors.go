package errors

import "errors"

var (
	ErrNotFound = errors.New("listing not found")

	ErrInvalidID = errors.New("invalid listing ID format")

	ErrUnknownKind = errors.New("unknown listing kind")
)
