package notify

import "errors"

// ErrNoTargets is returned when a notification names no recipients.
var ErrNoTargets = errors.New("notify: no targets")
