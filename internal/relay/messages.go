package relay

import "time"

// MQTT message types exchanged with Gray Logic Core. These follow the
// bridge interface convention shared by the protocol bridges: commands in,
// acks out, retained status and health.

// CommandMessage is a send command from Core.
// Topic: graylogic/command/whatsapp/{session}/send
type CommandMessage struct {
	// ID uniquely identifies this command for correlation with the ack.
	ID string `json:"id,omitempty"`

	// To is the destination chat ID (e.g., "4479...@c.us").
	To string `json:"to"`

	// Message is the text body. May be empty when media is attached.
	Message string `json:"message"`

	// MediaURL is an optional media attachment to fetch and send.
	MediaURL string `json:"media_url,omitempty"`

	// MediaFilename overrides the attachment filename.
	MediaFilename string `json:"media_filename,omitempty"`

	// Source indicates where the command originated ("api", "automation").
	Source string `json:"source,omitempty"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the command was delivered to the bridge server.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"
)

// AckMessage acknowledges a command back to Core.
// Topic: graylogic/ack/whatsapp/{session}
type AckMessage struct {
	// CommandID is the ID from the original command.
	CommandID string `json:"command_id,omitempty"`

	// Timestamp is when the acknowledgment was sent (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// SessionID is the session the command addressed.
	SessionID string `json:"session_id"`

	// Status indicates the acknowledgment status.
	Status AckStatus `json:"status"`

	// Protocol is the protocol identifier ("whatsapp").
	Protocol string `json:"protocol"`

	// Error contains details if status is "failed".
	Error *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	// Code is the error code (e.g., "UNKNOWN_SESSION", "SEND_REJECTED").
	Code string `json:"code"`

	// Message is a human-readable error description.
	Message string `json:"message"`
}

// Error codes for command failures.
const (
	ErrCodeUnknownSession    = "UNKNOWN_SESSION"
	ErrCodeInvalidPayload    = "INVALID_PAYLOAD"
	ErrCodeSendRejected      = "SEND_REJECTED"
	ErrCodeBridgeUnreachable = "BRIDGE_UNREACHABLE"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeBridgeError       = "BRIDGE_ERROR"
)

// EventMessage wraps a push event for the bus.
// Topic: graylogic/event/whatsapp/{session}/{kind}
type EventMessage struct {
	// SessionID is the session the event came from.
	SessionID string `json:"session_id"`

	// Timestamp is when the relay observed the event (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Kind is the wire event tag (message, qr, ready, ...).
	Kind string `json:"kind"`

	// Data is the event payload, passed through verbatim.
	Data map[string]any `json:"data,omitempty"`
}

// StatusMessage reports a session status transition.
// Topic: graylogic/status/whatsapp/{session}
// QoS: 1, Retained: Yes
type StatusMessage struct {
	// SessionID is the session whose status changed.
	SessionID string `json:"session_id"`

	// Timestamp is when the transition happened (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status is the new connection status (e.g., "READY").
	Status string `json:"status"`

	// Previous is the status before the transition, when known.
	Previous string `json:"previous,omitempty"`
}

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the bridge is operating normally.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is operating with issues.
	HealthDegraded HealthStatus = "degraded"

	// HealthOffline indicates the bridge is not running.
	HealthOffline HealthStatus = "offline"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage reports operational status to Core.
// Topic: graylogic/health/whatsapp
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the bridge identifier ("whatsapp").
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC, ISO8601).
	Timestamp time.Time `json:"timestamp"`

	// Status indicates the current operational status.
	Status HealthStatus `json:"status"`

	// Version is the bridge software version.
	Version string `json:"version,omitempty"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Sessions describes each registered session.
	Sessions []SessionHealth `json:"sessions,omitempty"`

	// Statistics contains operational counters.
	Statistics *RelayStatistics `json:"statistics,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// SessionHealth describes one session in a health report.
type SessionHealth struct {
	// ID is the session identifier.
	ID string `json:"id"`

	// Status is the session's connection status (e.g., "READY").
	Status string `json:"status"`

	// Listener is the push-channel state (STOPPED, CONNECTING, CONNECTED).
	Listener string `json:"listener"`
}

// RelayStatistics contains operational counters.
type RelayStatistics struct {
	// EventsPublished is the total number of events republished to MQTT.
	EventsPublished uint64 `json:"events_published"`

	// CommandsReceived is the total number of send commands received.
	CommandsReceived uint64 `json:"commands_received"`

	// SendFailures is the total number of failed sends.
	SendFailures uint64 `json:"send_failures"`
}

// NewAckMessage creates an acknowledgment for a successfully executed command.
func NewAckMessage(sessionID, commandID string) AckMessage {
	return AckMessage{
		CommandID: commandID,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Status:    AckAccepted,
		Protocol:  "whatsapp",
	}
}

// NewAckError creates an acknowledgment with error details.
func NewAckError(sessionID, commandID, code, message string) AckMessage {
	return AckMessage{
		CommandID: commandID,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Status:    AckFailed,
		Protocol:  "whatsapp",
		Error: &AckError{
			Code:    code,
			Message: message,
		},
	}
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(version string, status HealthStatus, sessions []SessionHealth, stats RelayStatistics, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:        "whatsapp",
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       version,
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Sessions:      sessions,
		Statistics:    &stats,
	}
}

// NewLWTMessage creates the Last Will and Testament message, published by
// the broker if the bridge disconnects unexpectedly.
func NewLWTMessage() HealthMessage {
	return HealthMessage{
		Bridge:    "whatsapp",
		Timestamp: time.Now().UTC(),
		Status:    HealthOffline,
		Reason:    "unexpected_disconnect",
	}
}
