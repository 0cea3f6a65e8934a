package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Per-operation timeouts. Each request opens its own short-lived connection
// and carries its own deadline.
const (
	// statusTimeout bounds the status check.
	statusTimeout = 10 * time.Second

	// sendTimeout bounds a send request. Longer than the others because
	// the bridge may need to fetch and upload media.
	sendTimeout = 30 * time.Second

	// chatsTimeout bounds the chat listing request.
	chatsTimeout = 15 * time.Second

	// logoutTimeout bounds the logout request.
	logoutTimeout = 15 * time.Second
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client is a connection to one whatsapp-web.js bridge session.
//
// It owns the connection status cell, the push-channel listener, and the
// subscriber registry. Request operations may be called concurrently with
// each other and with the listener.
type Client struct {
	cfg        TransportConfig
	httpClient *http.Client

	// status is the shared connection status cell.
	status   Status
	statusMu sync.RWMutex

	// onStatusChange is invoked on status transitions (optional).
	onStatusChange func(old, new Status)
	callbackMu     sync.RWMutex

	// subscribers receive decoded inbound events.
	subscribers map[<-chan Event]chan Event
	subMu       sync.RWMutex

	// Listener lifecycle. stopCh signals the background goroutine to stop,
	// done closes when it has exited. conn is the live push-channel socket.
	running        bool
	runMu          sync.Mutex
	stopCh         chan struct{}
	done           chan struct{}
	conn           *websocket.Conn
	connMu         sync.Mutex
	listenerState  ListenerState
	stateMu        sync.RWMutex
	reconnectDelay time.Duration

	logger   Logger
	loggerMu sync.RWMutex
}

// StatusPayload is the bridge's status response, passed through verbatim.
type StatusPayload map[string]any

// ChatSummary is one entry from the bridge's chat listing, passed through
// verbatim. The bridge's schema is not interpreted here.
type ChatSummary map[string]any

// SendRequest is an outbound message. To must be non-empty; an empty
// Message with no media is passed through and the bridge decides.
type SendRequest struct {
	To            string `json:"to"`
	Message       string `json:"message"`
	MediaURL      string `json:"media_url,omitempty"`
	MediaFilename string `json:"media_filename,omitempty"`
}

// New creates a client for the given bridge. The listener is not started;
// call Start to open the push channel.
func New(cfg TransportConfig) *Client {
	return &Client{
		cfg:            cfg,
		httpClient:     &http.Client{},
		status:         StatusDisconnected,
		subscribers:    make(map[<-chan Event]chan Event),
		listenerState:  ListenerStopped,
		reconnectDelay: defaultReconnectDelay,
	}
}

// SetReconnectDelay overrides the fixed delay between push-channel
// reconnect attempts. Must be called before Start.
func (c *Client) SetReconnectDelay(d time.Duration) {
	if d > 0 {
		c.reconnectDelay = d
	}
}

// SetLogger sets a logger for listener and dispatch logging.
// If not set, the client is silent.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Debug(msg, args...)
	}
}

func (c *Client) logInfo(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, args...)
	}
}

func (c *Client) logWarn(msg string, args ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, args...)
	}
}

// CheckConnection queries the bridge's status endpoint and updates the
// status cell from the response.
//
// The status is set to the payload's status field, or UNKNOWN when the
// field is absent. Returns the full payload so callers can inspect
// additional fields (account info, phone number).
//
// Errors:
//   - ErrUnreachable: connection-level failure
//   - ErrUnauthorized: HTTP 401
//   - *BridgeError: other non-2xx responses
func (c *Client) CheckConnection(ctx context.Context) (StatusPayload, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/status", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if !is2xx(resp.StatusCode) {
		return nil, &BridgeError{StatusCode: resp.StatusCode, Op: "status"}
	}

	var payload StatusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}

	status, ok := payload["status"].(string)
	if !ok || status == "" {
		c.setStatus(StatusUnknown)
	} else {
		c.setStatus(Status(status))
	}

	return payload, nil
}

// SendMessage posts an outbound message to the bridge.
//
// No status side effect. On a non-2xx response the error is a *SendError
// whose Reason is the response body's error field when present.
func (c *Client) SendMessage(ctx context.Context, req SendRequest) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding send request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/send", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if !is2xx(resp.StatusCode) {
		return &SendError{
			Reason:     extractErrorReason(resp),
			StatusCode: resp.StatusCode,
		}
	}

	return nil
}

// ListChats fetches the bridge's conversation listing.
//
// Errors mirror CheckConnection: ErrUnreachable, ErrUnauthorized,
// *BridgeError.
func (c *Client) ListChats(ctx context.Context) ([]ChatSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, chatsTimeout)
	defer cancel()

	resp, err := c.doRequest(ctx, http.MethodGet, "/api/chats", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if !is2xx(resp.StatusCode) {
		return nil, &BridgeError{StatusCode: resp.StatusCode, Op: "chats"}
	}

	var chats []ChatSummary
	if err := json.NewDecoder(resp.Body).Decode(&chats); err != nil {
		return nil, fmt.Errorf("decoding chats response: %w", err)
	}

	return chats, nil
}

// Logout asks the bridge to end the messaging session. Best-effort:
// typically invoked during teardown, callers may ignore the error.
func (c *Client) Logout(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, logoutTimeout)
	defer cancel()

	resp, err := c.doRequest(ctx, http.MethodPost, "/api/logout", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort cleanup

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if !is2xx(resp.StatusCode) {
		return &BridgeError{StatusCode: resp.StatusCode, Op: "logout"}
	}

	return nil
}

// doRequest issues one authenticated request against the bridge.
// Connection-level failures are wrapped as ErrUnreachable.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL()+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	return resp, nil
}

// extractErrorReason pulls the error field from a failure response body,
// falling back to a generic description.
func extractErrorReason(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("bridge returned status %d", resp.StatusCode)
}

func is2xx(code int) bool {
	return code >= 200 && code <= 299
}
