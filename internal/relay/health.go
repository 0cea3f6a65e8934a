package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

// defaultHealthInterval is how often health status is published when no
// interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthReporter manages periodic health status reporting.
// It publishes health messages to MQTT at regular intervals.
type HealthReporter struct {
	version    string
	startTime  time.Time
	interval   time.Duration
	publisher  HealthPublisher
	sessions   Sessions
	statistics func() RelayStatistics
	topics     mqtt.Topics

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Sessions provides the sessions to report on.
	Sessions Sessions

	// Statistics snapshots the relay's counters. May be nil.
	Statistics func() RelayStatistics
}

// NewHealthReporter creates a health reporter.
// Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		version:    cfg.Version,
		startTime:  time.Now(),
		interval:   interval,
		publisher:  cfg.Publisher,
		sessions:   cfg.Sessions,
		statistics: cfg.Statistics,
		done:       make(chan struct{}),
	}
}

// Start begins periodic health reporting.
// Call Stop to shut down; the ctx also stops reporting when cancelled.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Publish final stopping status (best-effort, ignore errors)
		h.publishStatus(HealthStopping, "") //nolint:errcheck // Best-effort during shutdown
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
// Called during bridge initialization.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
// Useful for forcing an update after a significant event.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// GetLWTPayload returns the Last Will and Testament message payload.
// This should be set as the MQTT will message during connection.
func (h *HealthReporter) GetLWTPayload() ([]byte, error) {
	msg := NewLWTMessage()
	return json.Marshal(msg)
}

// GetLWTTopic returns the topic for the Last Will and Testament.
func (h *HealthReporter) GetLWTTopic() string {
	return h.topics.Health()
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Publish initial status
	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	// Check MQTT connection
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	// Check each session's push channel
	for _, s := range h.sessionHealth() {
		if s.Listener != string(whatsapp.ListenerConnected) {
			return HealthDegraded, fmt.Sprintf("push channel down: %s", s.ID)
		}
	}

	return HealthHealthy, ""
}

// publishStatus publishes a health status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil // No publisher configured
	}

	var stats RelayStatistics
	if h.statistics != nil {
		stats = h.statistics()
	}

	msg := NewHealthMessage(h.version, status, h.sessionHealth(), stats, h.startTime)
	if reason != "" {
		msg.Reason = reason
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// Publish (QoS 1, retained)
	return h.publisher.Publish(h.topics.Health(), payload, 1, true)
}

// sessionHealth snapshots every session's status and listener state.
func (h *HealthReporter) sessionHealth() []SessionHealth {
	if h.sessions == nil {
		return nil
	}

	ids := h.sessions.IDs()
	sessions := make([]SessionHealth, 0, len(ids))
	for _, id := range ids {
		client, err := h.sessions.Get(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, SessionHealth{
			ID:       id,
			Status:   string(client.Status()),
			Listener: string(client.State()),
		})
	}
	return sessions
}

// logError logs an error if logger is set.
func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
