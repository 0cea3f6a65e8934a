// Package notify delivers one notification to multiple chat targets.
//
// A Service fans a notification out over a session's client. Per-target
// failures are collected rather than aborting the remaining deliveries,
// so one bad number does not silence an announcement to a group of
// recipients.
package notify
