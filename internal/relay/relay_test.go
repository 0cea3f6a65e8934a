package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

// publishedMessage records one call to mockPublisher.Publish.
type publishedMessage struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// mockPublisher implements MQTTClient and HealthPublisher for tests.
type mockPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	handlers  map[string]mqtt.MessageHandler
	connected bool
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{
		handlers:  make(map[string]mqtt.MessageHandler),
		connected: true,
	}
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedMessage{
		Topic: topic, Payload: payload, QoS: qos, Retained: retained,
	})
	return nil
}

func (m *mockPublisher) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[topic] = handler
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) setConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	m.mu.Unlock()
}

// last returns the most recent message published to a topic.
func (m *mockPublisher) last(topic string) (publishedMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.published) - 1; i >= 0; i-- {
		if m.published[i].Topic == topic {
			return m.published[i], true
		}
	}
	return publishedMessage{}, false
}

func (m *mockPublisher) handler(topic string) mqtt.MessageHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handlers[topic]
}

// waitForMessage polls until a message appears on a topic.
func waitForMessage(t *testing.T, m *mockPublisher, topic string) publishedMessage {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := m.last(topic); ok {
			return msg
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no message published to %s", topic)
	return publishedMessage{}
}

// fakeSession implements SessionClient for tests.
type fakeSession struct {
	mu       sync.Mutex
	events   chan whatsapp.Event
	closed   bool
	statusCb func(old, new whatsapp.Status)
	status   whatsapp.Status
	state    whatsapp.ListenerState
	sendErr  error
	sent     []whatsapp.SendRequest
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		events: make(chan whatsapp.Event, 16),
		status: whatsapp.StatusReady,
		state:  whatsapp.ListenerConnected,
	}
}

func (f *fakeSession) Subscribe() <-chan whatsapp.Event {
	return f.events
}

func (f *fakeSession) Unsubscribe(<-chan whatsapp.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
}

func (f *fakeSession) SetOnStatusChange(callback func(old, new whatsapp.Status)) {
	f.mu.Lock()
	f.statusCb = callback
	f.mu.Unlock()
}

func (f *fakeSession) Status() whatsapp.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSession) State() whatsapp.ListenerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) SendMessage(_ context.Context, req whatsapp.SendRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return f.sendErr
}

func (f *fakeSession) fireStatusChange(old, current whatsapp.Status) {
	f.mu.Lock()
	cb := f.statusCb
	f.status = current
	f.mu.Unlock()
	if cb != nil {
		cb(old, current)
	}
}

// fakeSessions implements Sessions over a fixed map.
type fakeSessions map[string]*fakeSession

func (s fakeSessions) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s fakeSessions) Get(id string) (SessionClient, error) {
	client, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return client, nil
}

func startTestRelay(t *testing.T, sessions fakeSessions) (*Relay, *mockPublisher) {
	t.Helper()

	pub := newMockPublisher()
	r, err := New(Options{MQTT: pub, Sessions: sessions})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(r.Stop)

	return r, pub
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Options{Sessions: fakeSessions{}}); err == nil {
		t.Error("New() without MQTT client did not fail")
	}
	if _, err := New(Options{MQTT: newMockPublisher()}); err == nil {
		t.Error("New() without sessions did not fail")
	}
}

func TestRelay_PublishesEvents(t *testing.T) {
	session := newFakeSession()
	_, pub := startTestRelay(t, fakeSessions{"wa-main": session})

	session.events <- whatsapp.Event{
		Kind: whatsapp.EventMessage,
		Data: map[string]any{"body": "hello"},
	}

	msg := waitForMessage(t, pub, "graylogic/event/whatsapp/wa-main/message")
	if msg.QoS != 1 {
		t.Errorf("event QoS = %d, want 1", msg.QoS)
	}
	if msg.Retained {
		t.Error("event published retained, want not retained")
	}

	var ev EventMessage
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.SessionID != "wa-main" {
		t.Errorf("SessionID = %q, want wa-main", ev.SessionID)
	}
	if ev.Kind != whatsapp.EventMessage {
		t.Errorf("Kind = %q, want %q", ev.Kind, whatsapp.EventMessage)
	}
	if ev.Data["body"] != "hello" {
		t.Errorf("Data[body] = %v, want hello", ev.Data["body"])
	}
}

func TestRelay_SeedsRetainedStatus(t *testing.T) {
	session := newFakeSession()
	_, pub := startTestRelay(t, fakeSessions{"wa-main": session})

	msg := waitForMessage(t, pub, "graylogic/status/whatsapp/wa-main")
	if !msg.Retained {
		t.Error("status published not retained, want retained")
	}

	var status StatusMessage
	if err := json.Unmarshal(msg.Payload, &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Status != string(whatsapp.StatusReady) {
		t.Errorf("Status = %q, want READY", status.Status)
	}
}

func TestRelay_PublishesStatusTransitions(t *testing.T) {
	session := newFakeSession()
	_, pub := startTestRelay(t, fakeSessions{"wa-main": session})

	session.fireStatusChange(whatsapp.StatusReady, whatsapp.StatusDisconnected)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msg, ok := pub.last("graylogic/status/whatsapp/wa-main"); ok {
			var status StatusMessage
			if err := json.Unmarshal(msg.Payload, &status); err != nil {
				t.Fatalf("unmarshal status: %v", err)
			}
			if status.Status == string(whatsapp.StatusDisconnected) {
				if status.Previous != string(whatsapp.StatusReady) {
					t.Errorf("Previous = %q, want READY", status.Previous)
				}
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("status transition never published")
}

func TestRelay_CommandSendsMessage(t *testing.T) {
	session := newFakeSession()
	_, pub := startTestRelay(t, fakeSessions{"wa-main": session})

	handler := pub.handler("graylogic/command/whatsapp/+/send")
	if handler == nil {
		t.Fatal("relay did not subscribe to command topic")
	}

	payload := []byte(`{"id":"cmd-1","to":"1234@c.us","message":"hello"}`)
	if err := handler("graylogic/command/whatsapp/wa-main/send", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	session.mu.Lock()
	sent := append([]whatsapp.SendRequest(nil), session.sent...)
	session.mu.Unlock()

	if len(sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1", len(sent))
	}
	if sent[0].To != "1234@c.us" || sent[0].Message != "hello" {
		t.Errorf("sent = %+v, want to=1234@c.us message=hello", sent[0])
	}

	msg, ok := pub.last("graylogic/ack/whatsapp/wa-main")
	if !ok {
		t.Fatal("no ack published")
	}
	var ack AckMessage
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Status != AckAccepted {
		t.Errorf("ack.Status = %q, want accepted", ack.Status)
	}
	if ack.CommandID != "cmd-1" {
		t.Errorf("ack.CommandID = %q, want cmd-1", ack.CommandID)
	}
	if ack.Protocol != "whatsapp" {
		t.Errorf("ack.Protocol = %q, want whatsapp", ack.Protocol)
	}
}

func TestRelay_CommandUnknownSession(t *testing.T) {
	_, pub := startTestRelay(t, fakeSessions{"wa-main": newFakeSession()})

	handler := pub.handler("graylogic/command/whatsapp/+/send")
	payload := []byte(`{"id":"cmd-2","to":"1@c.us","message":"hi"}`)
	if err := handler("graylogic/command/whatsapp/wa-ghost/send", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	msg, ok := pub.last("graylogic/ack/whatsapp/wa-ghost")
	if !ok {
		t.Fatal("no ack published")
	}
	var ack AckMessage
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Status != AckFailed {
		t.Errorf("ack.Status = %q, want failed", ack.Status)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodeUnknownSession {
		t.Errorf("ack.Error = %+v, want code UNKNOWN_SESSION", ack.Error)
	}
}

func TestRelay_CommandMalformedPayload(t *testing.T) {
	_, pub := startTestRelay(t, fakeSessions{"wa-main": newFakeSession()})

	handler := pub.handler("graylogic/command/whatsapp/+/send")
	if err := handler("graylogic/command/whatsapp/wa-main/send", []byte("not json")); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	msg, ok := pub.last("graylogic/ack/whatsapp/wa-main")
	if !ok {
		t.Fatal("no ack published")
	}
	var ack AckMessage
	if err := json.Unmarshal(msg.Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodeInvalidPayload {
		t.Errorf("ack.Error = %+v, want code INVALID_PAYLOAD", ack.Error)
	}
}

func TestRelay_CommandSendFailures(t *testing.T) {
	tests := []struct {
		name       string
		sendErr    error
		wantCode   string
		wantReason string
	}{
		{
			name:       "rejected by bridge",
			sendErr:    &whatsapp.SendError{Reason: "number not registered", StatusCode: 400},
			wantCode:   ErrCodeSendRejected,
			wantReason: "number not registered",
		},
		{
			name:     "bridge unreachable",
			sendErr:  fmt.Errorf("%w: dial tcp: connection refused", whatsapp.ErrUnreachable),
			wantCode: ErrCodeBridgeUnreachable,
		},
		{
			name:     "unauthorized",
			sendErr:  whatsapp.ErrUnauthorized,
			wantCode: ErrCodeUnauthorized,
		},
		{
			name:     "other error",
			sendErr:  errors.New("boom"),
			wantCode: ErrCodeBridgeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newFakeSession()
			session.sendErr = tt.sendErr
			r, pub := startTestRelay(t, fakeSessions{"wa-main": session})

			handler := pub.handler("graylogic/command/whatsapp/+/send")
			payload := []byte(`{"id":"cmd-3","to":"1@c.us","message":"hi"}`)
			if err := handler("graylogic/command/whatsapp/wa-main/send", payload); err != nil {
				t.Fatalf("handler error = %v", err)
			}

			msg, ok := pub.last("graylogic/ack/whatsapp/wa-main")
			if !ok {
				t.Fatal("no ack published")
			}
			var ack AckMessage
			if err := json.Unmarshal(msg.Payload, &ack); err != nil {
				t.Fatalf("unmarshal ack: %v", err)
			}
			if ack.Status != AckFailed {
				t.Errorf("ack.Status = %q, want failed", ack.Status)
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack.Error = %+v, want code %s", ack.Error, tt.wantCode)
			}
			if tt.wantReason != "" && ack.Error.Message != tt.wantReason {
				t.Errorf("ack.Error.Message = %q, want %q", ack.Error.Message, tt.wantReason)
			}

			if got := r.statistics().SendFailures; got != 1 {
				t.Errorf("SendFailures = %d, want 1", got)
			}
		})
	}
}

func TestRelay_CommandInvalidTopic(t *testing.T) {
	_, pub := startTestRelay(t, fakeSessions{"wa-main": newFakeSession()})

	handler := pub.handler("graylogic/command/whatsapp/+/send")
	if err := handler("graylogic/command/whatsapp", []byte("{}")); err == nil {
		t.Error("handler accepted malformed topic, want error")
	}
}

func TestRelay_StopClosesPumps(t *testing.T) {
	session := newFakeSession()
	pub := newMockPublisher()
	r, err := New(Options{MQTT: pub, Sessions: fakeSessions{"wa-main": session}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	r.Stop()

	session.mu.Lock()
	closed := session.closed
	session.mu.Unlock()
	if !closed {
		t.Error("Stop() did not unsubscribe the session")
	}

	// Stop twice must not panic.
	r.Stop()
}

func TestSessionFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"graylogic/command/whatsapp/wa-main/send", "wa-main"},
		{"graylogic/command/whatsapp/wa-main", ""},
		{"graylogic/command/whatsapp/wa-main/read", ""},
		{"graylogic/command", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := sessionFromTopic(tt.topic); got != tt.want {
			t.Errorf("sessionFromTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
