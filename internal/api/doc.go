// Package api provides the bridge's local HTTP REST API and WebSocket
// event stream.
//
// It exposes session status, send, chat listing, logout, and message-log
// queries to admin tooling and wall panels, plus a WebSocket endpoint
// streaming push events as they arrive from the bridge servers.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// All endpoints except /api/v1/health require the static bearer token
// from the api config section.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
