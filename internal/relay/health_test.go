package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

const healthTopic = "graylogic/health/whatsapp"

func newTestReporter(pub *mockPublisher, sessions Sessions) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		Version:   "1.0.0",
		Interval:  10 * time.Millisecond,
		Publisher: pub,
		Sessions:  sessions,
		Statistics: func() RelayStatistics {
			return RelayStatistics{EventsPublished: 7}
		},
	})
}

func decodeHealth(t *testing.T, msg publishedMessage) HealthMessage {
	t.Helper()
	var health HealthMessage
	if err := json.Unmarshal(msg.Payload, &health); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return health
}

func TestHealthReporter_PublishNowHealthy(t *testing.T) {
	pub := newMockPublisher()
	h := newTestReporter(pub, fakeSessions{"wa-main": newFakeSession()})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg, ok := pub.last(healthTopic)
	if !ok {
		t.Fatal("no health message published")
	}
	if msg.QoS != 1 || !msg.Retained {
		t.Errorf("health QoS/retained = %d/%v, want 1/true", msg.QoS, msg.Retained)
	}

	health := decodeHealth(t, msg)
	if health.Status != HealthHealthy {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Bridge != "whatsapp" {
		t.Errorf("Bridge = %q, want whatsapp", health.Bridge)
	}
	if len(health.Sessions) != 1 || health.Sessions[0].ID != "wa-main" {
		t.Errorf("Sessions = %+v, want one entry for wa-main", health.Sessions)
	}
	if health.Sessions[0].Listener != string(whatsapp.ListenerConnected) {
		t.Errorf("Listener = %q, want CONNECTED", health.Sessions[0].Listener)
	}
	if health.Statistics == nil || health.Statistics.EventsPublished != 7 {
		t.Errorf("Statistics = %+v, want events_published 7", health.Statistics)
	}
}

func TestHealthReporter_DegradedWhenMQTTDisconnected(t *testing.T) {
	pub := newMockPublisher()
	pub.setConnected(false)
	h := newTestReporter(pub, fakeSessions{"wa-main": newFakeSession()})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg, _ := pub.last(healthTopic)
	health := decodeHealth(t, msg)
	if health.Status != HealthDegraded {
		t.Errorf("Status = %q, want degraded", health.Status)
	}
	if health.Reason != "MQTT disconnected" {
		t.Errorf("Reason = %q, want MQTT disconnected", health.Reason)
	}
}

func TestHealthReporter_DegradedWhenListenerDown(t *testing.T) {
	session := newFakeSession()
	session.state = whatsapp.ListenerConnecting

	pub := newMockPublisher()
	h := newTestReporter(pub, fakeSessions{"wa-main": session})

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error = %v", err)
	}

	msg, _ := pub.last(healthTopic)
	health := decodeHealth(t, msg)
	if health.Status != HealthDegraded {
		t.Errorf("Status = %q, want degraded", health.Status)
	}
	if health.Reason != "push channel down: wa-main" {
		t.Errorf("Reason = %q, want push channel down: wa-main", health.Reason)
	}
}

func TestHealthReporter_PublishStarting(t *testing.T) {
	pub := newMockPublisher()
	h := newTestReporter(pub, fakeSessions{})

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error = %v", err)
	}

	msg, _ := pub.last(healthTopic)
	health := decodeHealth(t, msg)
	if health.Status != HealthStarting {
		t.Errorf("Status = %q, want starting", health.Status)
	}
}

func TestHealthReporter_StopPublishesStopping(t *testing.T) {
	pub := newMockPublisher()
	h := newTestReporter(pub, fakeSessions{"wa-main": newFakeSession()})

	h.Start(context.Background())
	h.Stop()

	msg, ok := pub.last(healthTopic)
	if !ok {
		t.Fatal("no health message published")
	}
	health := decodeHealth(t, msg)
	if health.Status != HealthStopping {
		t.Errorf("Status = %q, want stopping", health.Status)
	}

	// Stop twice must not panic.
	h.Stop()
}

func TestHealthReporter_LWT(t *testing.T) {
	pub := newMockPublisher()
	h := newTestReporter(pub, fakeSessions{})

	if got := h.GetLWTTopic(); got != healthTopic {
		t.Errorf("GetLWTTopic() = %q, want %q", got, healthTopic)
	}

	payload, err := h.GetLWTPayload()
	if err != nil {
		t.Fatalf("GetLWTPayload() error = %v", err)
	}
	var health HealthMessage
	if err := json.Unmarshal(payload, &health); err != nil {
		t.Fatalf("unmarshal LWT: %v", err)
	}
	if health.Status != HealthOffline {
		t.Errorf("Status = %q, want offline", health.Status)
	}
	if health.Reason != "unexpected_disconnect" {
		t.Errorf("Reason = %q, want unexpected_disconnect", health.Reason)
	}
}
