package whatsapp

import (
	"errors"
	"fmt"
)

// Domain-specific errors for bridge operations.
// Use errors.Is()/errors.As() to check for these errors in calling code.
var (
	// ErrUnreachable is returned when the bridge server cannot be reached
	// at the connection level (refused, DNS failure, timeout).
	ErrUnreachable = errors.New("whatsapp: bridge unreachable")

	// ErrUnauthorized is returned when the bridge rejects the bearer token.
	ErrUnauthorized = errors.New("whatsapp: unauthorized")
)

// BridgeError is returned when the bridge responds with an unexpected
// non-2xx status (other than 401) to a request operation.
type BridgeError struct {
	// StatusCode is the HTTP status the bridge returned.
	StatusCode int

	// Op names the operation that failed (status, chats, logout).
	Op string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("whatsapp: %s request failed with status %d", e.Op, e.StatusCode)
}

// SendError is returned when the bridge rejects a send request.
// Reason carries the bridge's own error message when the response body
// contained one, otherwise a generic description.
type SendError struct {
	Reason     string
	StatusCode int
}

func (e *SendError) Error() string {
	return fmt.Sprintf("whatsapp: send failed: %s", e.Reason)
}
