package mqtt

import "fmt"

// Topic prefixes for the Gray Logic MQTT bus.
//
// WhatsApp topics use the flat scheme: graylogic/{category}/whatsapp/{session}[/{suffix}]
// This matches the scheme the other protocol bridges publish under, so Core
// subscribers can use the same wildcard patterns across bridges.
const (
	// TopicPrefix is the base for all Gray Logic topics.
	TopicPrefix = "graylogic"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"

	// protocol is the bridge protocol segment used in all WhatsApp topics.
	protocol = "whatsapp"
)

// Topics provides builders for the WhatsApp bridge's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.Event("wa-main", "message")
//	// Returns: "graylogic/event/whatsapp/wa-main/message"
type Topics struct{}

// Event returns the topic for push events from a session.
// The kind segment is the wire event tag (message, qr, ready, ...).
//
// Example: graylogic/event/whatsapp/wa-main/message
func (Topics) Event(sessionID, kind string) string {
	return fmt.Sprintf("%s/event/%s/%s/%s", TopicPrefix, protocol, sessionID, kind)
}

// Status returns the retained connection-status topic for a session.
//
// Example: graylogic/status/whatsapp/wa-main
func (Topics) Status(sessionID string) string {
	return fmt.Sprintf("%s/status/%s/%s", TopicPrefix, protocol, sessionID)
}

// Command returns the topic Core publishes send commands to.
//
// Example: graylogic/command/whatsapp/wa-main/send
func (Topics) Command(sessionID string) string {
	return fmt.Sprintf("%s/command/%s/%s/send", TopicPrefix, protocol, sessionID)
}

// Ack returns the topic for command acknowledgements from a session.
//
// Example: graylogic/ack/whatsapp/wa-main
func (Topics) Ack(sessionID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, sessionID)
}

// Health returns the topic for the bridge's periodic health reports.
//
// Example: graylogic/health/whatsapp
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}

// SystemStatus returns the system status topic used for the LWT and
// graceful online/offline announcements.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching send commands for every session.
//
// Pattern: graylogic/command/whatsapp/+/send
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+/send", TopicPrefix, protocol)
}

// AllEvents returns a pattern matching all session events.
//
// Pattern: graylogic/event/whatsapp/+/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/event/%s/+/+", TopicPrefix, protocol)
}

// AllStatuses returns a pattern matching all session status topics.
//
// Pattern: graylogic/status/whatsapp/+
func (Topics) AllStatuses() string {
	return fmt.Sprintf("%s/status/%s/+", TopicPrefix, protocol)
}
