package messagelog

import "errors"

var (
	// ErrNoMessages is returned when a session has no recorded messages.
	ErrNoMessages = errors.New("messagelog: no messages recorded")

	// ErrInvalidMessage is returned when a message is missing required fields.
	ErrInvalidMessage = errors.New("messagelog: invalid message")
)
