package persistence

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrVersionNotFound is returned when a flow version is missing.
	ErrVersionNotFound = errors.New("flow version not found")
)
