package whatsapp

// Status is the client's current belief about the bridge's connection and
// authentication state. The well-known values are listed below, but the
// bridge may report arbitrary strings which are passed through verbatim.
type Status string

// Well-known status values.
const (
	// StatusDisconnected is the initial status and the status after the
	// bridge reports a disconnect.
	StatusDisconnected Status = "DISCONNECTED"

	// StatusConnecting is reported while the session is (re)establishing.
	StatusConnecting Status = "CONNECTING"

	// StatusReady means the bridge session is connected and ready.
	StatusReady Status = "READY"

	// StatusAuthenticated means the messaging account has authenticated.
	StatusAuthenticated Status = "AUTHENTICATED"

	// StatusAuthFailure means authentication was rejected.
	StatusAuthFailure Status = "AUTH_FAILURE"

	// StatusUnknown is the fallback when the bridge omits a status field.
	StatusUnknown Status = "UNKNOWN"
)

// Status returns the current connection status.
func (c *Client) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// setStatus updates the status cell and fires the change callback when the
// value actually changed. Writes are sequential (listener goroutine or an
// awaited request call), the mutex guards cross-goroutine visibility.
func (c *Client) setStatus(s Status) {
	c.statusMu.Lock()
	old := c.status
	c.status = s
	c.statusMu.Unlock()

	if old == s {
		return
	}

	c.callbackMu.RLock()
	callback := c.onStatusChange
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(old, s)
	}
}

// SetOnStatusChange sets a callback invoked whenever the status value
// changes. The callback runs on whichever goroutine performed the update
// and should not block.
func (c *Client) SetOnStatusChange(callback func(old, new Status)) {
	c.callbackMu.Lock()
	c.onStatusChange = callback
	c.callbackMu.Unlock()
}
