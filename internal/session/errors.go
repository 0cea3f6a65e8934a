package session

import "errors"

var (
	// ErrNotFound is returned when no session exists for the given ID.
	ErrNotFound = errors.New("session: not found")

	// ErrDuplicate is returned when adding a session whose ID is taken.
	ErrDuplicate = errors.New("session: id already registered")
)
