package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

// Relay operation constants.
const (
	// commandTopicParts is the number of segments in a valid command topic:
	// graylogic/command/whatsapp/{session}/send
	commandTopicParts = 5

	// sessionSegment is the index of the session ID in a command topic.
	sessionSegment = 3

	// busQoS is the QoS level for events, acks, and status publishes.
	busQoS = 1
)

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// SessionClient is the per-session bridge client surface the relay needs.
// Satisfied by *whatsapp.Client.
type SessionClient interface {
	// Subscribe returns a channel receiving the session's push events.
	Subscribe() <-chan whatsapp.Event

	// Unsubscribe removes a subscription and closes its channel.
	Unsubscribe(ch <-chan whatsapp.Event)

	// SetOnStatusChange registers a status transition callback.
	SetOnStatusChange(callback func(old, new whatsapp.Status))

	// Status returns the session's connection status.
	Status() whatsapp.Status

	// State returns the push-channel lifecycle state.
	State() whatsapp.ListenerState

	// SendMessage posts an outbound message to the bridge server.
	SendMessage(ctx context.Context, req whatsapp.SendRequest) error
}

// Sessions provides session lookup.
// This interface is satisfied by *session.Registry (via adapter in main.go).
type Sessions interface {
	// IDs returns all session IDs in sorted order.
	IDs() []string

	// Get returns the client for a session ID.
	Get(id string) (SessionClient, error)
}

// Logger is the interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options holds configuration for creating a relay.
type Options struct {
	// MQTT is the MQTT client implementation.
	MQTT MQTTClient

	// Sessions provides session lookup.
	Sessions Sessions

	// Version is the bridge software version, reported in health messages.
	Version string

	// HealthInterval is how often to publish health status.
	// Default: 30 seconds.
	HealthInterval time.Duration

	// Logger is optional structured logger.
	Logger Logger
}

// sessionSub tracks one session's event subscription for teardown.
type sessionSub struct {
	client SessionClient
	events <-chan whatsapp.Event
}

// Relay fans session events out to MQTT and executes send commands from
// the bus.
type Relay struct {
	mqtt     MQTTClient
	sessions Sessions
	topics   mqtt.Topics
	health   *HealthReporter

	subs   map[string]sessionSub
	subsMu sync.Mutex

	// Operational counters, reported in health messages.
	eventsPublished  atomic.Uint64
	commandsReceived atomic.Uint64
	sendFailures     atomic.Uint64

	// Shutdown coordination. ctx is cancelled on Stop to abort in-flight
	// sends; the pumps exit when their event channels close.
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a relay. Call Start to begin operation.
func New(opts Options) (*Relay, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("sessions are required")
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	r := &Relay{
		mqtt:      opts.MQTT,
		sessions:  opts.Sessions,
		subs:      make(map[string]sessionSub),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	r.health = NewHealthReporter(HealthReporterConfig{
		Version:    opts.Version,
		Interval:   opts.HealthInterval,
		Publisher:  opts.MQTT,
		Sessions:   opts.Sessions,
		Statistics: r.statistics,
	})
	if opts.Logger != nil {
		r.health.SetLogger(opts.Logger)
	}

	return r, nil
}

// Health returns the relay's health reporter, used to wire the MQTT LWT.
func (r *Relay) Health() *HealthReporter {
	return r.health
}

// Start attaches every registered session, subscribes to command topics,
// and begins health reporting.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.health.PublishStarting(); err != nil {
		r.logError("failed to publish starting status", err)
	}

	for _, id := range r.sessions.IDs() {
		if err := r.attach(id); err != nil {
			return fmt.Errorf("attach session %s: %w", id, err)
		}
	}

	commandTopic := r.topics.AllCommands()
	if err := r.mqtt.Subscribe(commandTopic, busQoS, r.handleCommand); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	r.logInfo("subscribed to commands", "topic", commandTopic)

	r.health.Start(ctx)

	if err := r.health.PublishNow(); err != nil {
		r.logError("failed to publish healthy status", err)
	}

	r.logInfo("relay started", "sessions", len(r.sessions.IDs()))
	return nil
}

// Stop gracefully shuts down the relay. Event pumps drain, in-flight
// commands are cancelled, and a final "stopping" health status is
// published. Safe to call multiple times.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		r.ctxCancel()

		r.subsMu.Lock()
		subs := r.subs
		r.subs = make(map[string]sessionSub)
		r.subsMu.Unlock()

		// Closing each subscription ends its pump goroutine.
		for _, sub := range subs {
			sub.client.Unsubscribe(sub.events)
		}
		r.wg.Wait()

		// Stop health reporting (publishes "stopping" status)
		r.health.Stop()

		r.logInfo("relay stopped")
	})
}

// attach wires one session into the relay: status transitions publish
// retained, push events pump to the bus.
func (r *Relay) attach(id string) error {
	client, err := r.sessions.Get(id)
	if err != nil {
		return err
	}

	client.SetOnStatusChange(func(old, new whatsapp.Status) {
		r.publishStatus(id, old, new)
	})

	ch := client.Subscribe()
	r.subsMu.Lock()
	r.subs[id] = sessionSub{client: client, events: ch}
	r.subsMu.Unlock()

	r.wg.Add(1)
	go r.pump(id, ch)

	// Seed the retained status topic with the current value.
	r.publishStatus(id, "", client.Status())

	r.logInfo("session attached", "session_id", id)
	return nil
}

// pump republishes one session's events until its channel closes.
func (r *Relay) pump(id string, events <-chan whatsapp.Event) {
	defer r.wg.Done()

	for ev := range events {
		r.publishEvent(id, ev)
	}
}

// publishEvent publishes one event to the session's event topic.
func (r *Relay) publishEvent(id string, ev whatsapp.Event) {
	msg := EventMessage{
		SessionID: id,
		Timestamp: time.Now().UTC(),
		Kind:      ev.Kind,
		Data:      ev.Data,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		r.logError("failed to marshal event", err)
		return
	}

	topic := r.topics.Event(id, ev.Kind)
	if err := r.mqtt.Publish(topic, payload, busQoS, false); err != nil {
		r.logError("failed to publish event", err)
		return
	}

	r.eventsPublished.Add(1)
}

// publishStatus publishes a retained status transition for a session.
func (r *Relay) publishStatus(id string, old, current whatsapp.Status) {
	msg := StatusMessage{
		SessionID: id,
		Timestamp: time.Now().UTC(),
		Status:    string(current),
		Previous:  string(old),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		r.logError("failed to marshal status", err)
		return
	}

	if err := r.mqtt.Publish(r.topics.Status(id), payload, busQoS, true); err != nil {
		r.logError("failed to publish status", err)
	}
}

// handleCommand executes a send command from the bus and acknowledges it.
func (r *Relay) handleCommand(topic string, payload []byte) error {
	r.commandsReceived.Add(1)

	sessionID := sessionFromTopic(topic)
	if sessionID == "" {
		return fmt.Errorf("invalid command topic: %s", topic)
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		r.publishAckError(sessionID, "", ErrCodeInvalidPayload,
			fmt.Sprintf("malformed command: %v", err))
		return nil
	}

	client, err := r.sessions.Get(sessionID)
	if err != nil {
		r.publishAckError(sessionID, cmd.ID, ErrCodeUnknownSession,
			fmt.Sprintf("session %s not registered", sessionID))
		return nil
	}

	r.logInfo("received command",
		"command_id", cmd.ID,
		"session_id", sessionID,
		"to", cmd.To)

	req := whatsapp.SendRequest{
		To:            cmd.To,
		Message:       cmd.Message,
		MediaURL:      cmd.MediaURL,
		MediaFilename: cmd.MediaFilename,
	}
	if err := client.SendMessage(r.ctx, req); err != nil {
		r.sendFailures.Add(1)
		code, reason := classifySendError(err)
		r.publishAckError(sessionID, cmd.ID, code, reason)
		return nil
	}

	r.publishAck(sessionID, cmd.ID)
	return nil
}

// classifySendError maps a client send error to an ack error code.
func classifySendError(err error) (code, reason string) {
	var sendErr *whatsapp.SendError
	switch {
	case errors.As(err, &sendErr):
		return ErrCodeSendRejected, sendErr.Reason
	case errors.Is(err, whatsapp.ErrUnreachable):
		return ErrCodeBridgeUnreachable, err.Error()
	case errors.Is(err, whatsapp.ErrUnauthorized):
		return ErrCodeUnauthorized, err.Error()
	default:
		return ErrCodeBridgeError, err.Error()
	}
}

// publishAck publishes a success acknowledgment.
func (r *Relay) publishAck(sessionID, commandID string) {
	ack := NewAckMessage(sessionID, commandID)

	payload, err := json.Marshal(ack)
	if err != nil {
		r.logError("failed to marshal ack", err)
		return
	}

	if err := r.mqtt.Publish(r.topics.Ack(sessionID), payload, busQoS, false); err != nil {
		r.logError("failed to publish ack", err)
	}
}

// publishAckError publishes a failed command acknowledgment.
func (r *Relay) publishAckError(sessionID, commandID, code, message string) {
	ack := NewAckError(sessionID, commandID, code, message)

	payload, err := json.Marshal(ack)
	if err != nil {
		r.logError("failed to marshal ack error", err)
		return
	}

	if err := r.mqtt.Publish(r.topics.Ack(sessionID), payload, busQoS, false); err != nil {
		r.logError("failed to publish ack error", err)
	}

	r.logError("command failed",
		fmt.Errorf("code=%s message=%s", code, message))
}

// statistics snapshots the relay's counters for health reporting.
func (r *Relay) statistics() RelayStatistics {
	return RelayStatistics{
		EventsPublished:  r.eventsPublished.Load(),
		CommandsReceived: r.commandsReceived.Load(),
		SendFailures:     r.sendFailures.Load(),
	}
}

// sessionFromTopic extracts the session ID from a command topic.
// Returns "" when the topic does not match the expected shape.
func sessionFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != commandTopicParts || parts[len(parts)-1] != "send" {
		return ""
	}
	return parts[sessionSegment]
}

// SetLogger sets the logger for the relay.
func (r *Relay) SetLogger(logger Logger) {
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()

	if r.health != nil {
		r.health.SetLogger(logger)
	}
}

// logInfo logs an info message if logger is set.
func (r *Relay) logInfo(msg string, keysAndValues ...any) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (r *Relay) logError(msg string, err error) {
	r.loggerMu.RLock()
	logger := r.logger
	r.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
