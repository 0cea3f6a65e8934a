package whatsapp

import (
	"fmt"
	"net/url"
)

// TransportConfig locates one bridge server and carries its credential.
// Immutable after construction; created once per client.
type TransportConfig struct {
	// Host and Port locate the bridge server's HTTP and WebSocket endpoints.
	Host string
	Port int

	// Token is the bearer credential shared with the bridge server.
	// Sent as an Authorization header on REST calls and as a query
	// parameter on the push channel URL.
	Token string
}

// BaseURL returns the base URL for REST requests.
//
// Example: http://bridge.local:3000
func (c TransportConfig) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// PushURL returns the WebSocket URL for the push channel, with the token
// embedded as a query credential.
//
// Example: ws://bridge.local:3000/ws?token=secret
func (c TransportConfig) PushURL() string {
	return fmt.Sprintf("ws://%s:%d/ws?token=%s", c.Host, c.Port, url.QueryEscape(c.Token))
}
