package whatsapp

import "encoding/json"

// Wire event tags pushed by the bridge server.
const (
	EventStatus        = "status"
	EventReady         = "ready"
	EventAuthenticated = "authenticated"
	EventDisconnected  = "disconnected"
	EventQR            = "qr"
	EventMessage       = "message"
	EventMessageSent   = "message_sent"
	EventMessageAck    = "message_ack"
	EventAuthFailure   = "auth_failure"
)

// Event is one decoded push-channel frame. Data is the frame's payload
// passed through verbatim; only the tag drives status transitions.
// Events are ephemeral: forwarded to subscribers, never persisted here.
type Event struct {
	Kind string
	Data map[string]any
}

// frame is the wire format of a push-channel message.
type frame struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// subscriberBuffer is the per-subscriber channel depth. Slow subscribers
// drop events rather than blocking the listener.
const subscriberBuffer = 64

// Subscribe registers a new subscriber and returns its event channel.
// The channel receives every dispatched event until Unsubscribe is called.
func (c *Client) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	c.subMu.Lock()
	c.subscribers[ch] = ch
	c.subMu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel. Safe to call
// with a channel that was already unsubscribed.
func (c *Client) Unsubscribe(ch <-chan Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	sub, ok := c.subscribers[ch]
	if !ok {
		return
	}
	delete(c.subscribers, ch)
	close(sub)
}

// SubscriberCount returns the number of active subscribers.
func (c *Client) SubscriberCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscribers)
}

// handleFrame decodes one pushed frame, applies its status transition,
// and fans the event out to subscribers.
//
// Malformed frames and unknown tags are logged and dropped; neither tears
// down the push channel.
func (c *Client) handleFrame(raw []byte) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.logWarn("dropping malformed frame", "error", err)
		return
	}

	switch f.Event {
	case EventStatus:
		// The bridge's own status report. Keep the current value when the
		// field is absent.
		if s, ok := f.Data["status"].(string); ok && s != "" {
			c.setStatus(Status(s))
		}
	case EventReady:
		c.setStatus(StatusReady)
	case EventAuthenticated:
		c.setStatus(StatusAuthenticated)
	case EventDisconnected:
		c.setStatus(StatusDisconnected)
	case EventAuthFailure:
		c.setStatus(StatusAuthFailure)
	case EventQR, EventMessage, EventMessageSent, EventMessageAck:
		// No status transition; payload is forwarded verbatim.
	default:
		c.logDebug("dropping unknown event", "event", f.Event)
		return
	}

	c.publish(Event{Kind: f.Event, Data: f.Data})
}

// publish fans an event out to all current subscribers. Non-blocking: a
// subscriber whose buffer is full misses the event.
func (c *Client) publish(ev Event) {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscribers {
		select {
		case sub <- ev:
		default:
			c.logWarn("subscriber buffer full, dropping event", "kind", ev.Kind)
		}
	}
}
