package whatsapp

import (
	"time"

	"github.com/gorilla/websocket"
)

// ListenerState is the push-channel lifecycle state.
type ListenerState string

// Listener states.
const (
	// ListenerStopped is the initial and terminal state.
	ListenerStopped ListenerState = "STOPPED"

	// ListenerConnecting means the listener is (re)opening the push channel.
	ListenerConnecting ListenerState = "CONNECTING"

	// ListenerConnected means the push channel is open and frames are
	// being read.
	ListenerConnected ListenerState = "CONNECTED"
)

// Push-channel keepalive constants.
const (
	// pingInterval is how often the client pings the bridge.
	pingInterval = 30 * time.Second

	// pongTimeout is how long the client waits for a pong.
	pongTimeout = 10 * time.Second

	// closeTimeout bounds the close handshake during shutdown.
	closeTimeout = 5 * time.Second

	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 10 * time.Second

	// defaultReconnectDelay is the fixed delay between reconnect attempts.
	// The listener retries forever; short outages (bridge restart, Docker
	// network blip) must self-heal without operator intervention.
	defaultReconnectDelay = 5 * time.Second
)

// Start opens the push channel in a background goroutine.
//
// One listener per client: calling Start while already running is a no-op
// with a warning. The listener reconnects forever on loss of connection
// until Stop is called.
func (c *Client) Start() {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.running {
		c.logWarn("listener already running, ignoring start")
		return
	}

	c.running = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.setListenerState(ListenerConnecting)

	go c.listen(c.stopCh, c.done)
}

// Stop terminates the listener and waits for the background goroutine to
// exit. Safe to call when the listener was never started or already
// stopped. No frame is dispatched after Stop returns.
func (c *Client) Stop() {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.done
	c.runMu.Unlock()

	// Close the live socket to unblock the pending read promptly.
	c.connMu.Lock()
	if c.conn != nil {
		deadline := time.Now().Add(closeTimeout)
		c.conn.WriteControl(websocket.CloseMessage, //nolint:errcheck // Best effort close handshake
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.conn.Close() //nolint:errcheck // Best effort cleanup
	}
	c.connMu.Unlock()

	<-done
	c.setListenerState(ListenerStopped)
}

// State returns the listener's current lifecycle state.
func (c *Client) State() ListenerState {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.listenerState
}

func (c *Client) setListenerState(s ListenerState) {
	c.stateMu.Lock()
	c.listenerState = s
	c.stateMu.Unlock()
}

// listen is the background loop: connect, read until failure, wait the
// fixed delay, reconnect. Runs until stopCh closes.
func (c *Client) listen(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		if stopped(stopCh) {
			return
		}

		c.setListenerState(ListenerConnecting)
		conn, _, err := c.dialer().Dial(c.cfg.PushURL(), nil)
		if err != nil {
			c.logWarn("push channel connect failed",
				"host", c.cfg.Host,
				"port", c.cfg.Port,
				"error", err,
			)
			if !c.waitReconnect(stopCh) {
				return
			}
			continue
		}

		c.setConn(conn)

		// A stop requested while the dial was in flight: discard the
		// fresh connection instead of entering the read loop.
		if stopped(stopCh) {
			c.setConn(nil)
			conn.Close() //nolint:errcheck // Best effort cleanup
			return
		}

		c.setListenerState(ListenerConnected)
		c.logInfo("push channel connected", "host", c.cfg.Host, "port", c.cfg.Port)

		c.readLoop(conn, stopCh)

		c.setConn(nil)
		conn.Close() //nolint:errcheck // Best effort cleanup

		if stopped(stopCh) {
			return
		}

		c.logWarn("push channel lost, reconnecting", "delay", c.reconnectDelay)
		if !c.waitReconnect(stopCh) {
			return
		}
	}
}

// readLoop reads frames until the channel closes or errors. A keepalive
// goroutine pings the bridge; a missed pong trips the read deadline and
// surfaces as a read error, which triggers a reconnect.
func (c *Client) readLoop(conn *websocket.Conn, stopCh <-chan struct{}) {
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout)) //nolint:errcheck // Deadline on live conn
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.keepalive(conn, pingDone)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		// A stop requested mid-read must not dispatch the frame.
		if stopped(stopCh) {
			return
		}
		c.handleFrame(raw)
	}
}

// keepalive pings the bridge at the configured interval until the read
// loop exits or a write fails.
func (c *Client) keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(pongTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

func (c *Client) dialer() *websocket.Dialer {
	return &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// waitReconnect sleeps for the fixed reconnect delay. Returns false when
// stop was requested during the wait.
func (c *Client) waitReconnect(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return false
	case <-time.After(c.reconnectDelay):
		return true
	}
}

func stopped(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}
