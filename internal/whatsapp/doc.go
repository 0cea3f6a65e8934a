// Package whatsapp implements the client for the whatsapp-web.js bridge server.
//
// The bridge server is an external long-running Node.js process that talks to
// the messaging network and exposes two surfaces:
//   - REST endpoints for outbound operations (status check, send, chats, logout)
//   - a WebSocket push channel delivering inbound events (messages, acks,
//     authentication state changes)
//
// This package manages:
//   - Connection status tracking shared between pull checks and pushed events
//   - A reconnecting push-channel listener (fixed delay, retries forever)
//   - Event decoding and fan-out to subscribers
//   - Outbound request operations with per-call timeouts
//
// # Concurrency
//
// One background goroutine per client owns the push channel. Status writes
// happen on that goroutine or synchronously inside an awaited request call,
// so the status cell is mutex-guarded. Request operations are independent,
// short-lived, and safe to run concurrently with each other and the listener.
//
// # Usage
//
//	client := whatsapp.New(whatsapp.TransportConfig{
//	    Host:  "bridge.local",
//	    Port:  3000,
//	    Token: token,
//	})
//	client.Start()
//	defer client.Stop()
//
//	events := client.Subscribe()
//	for ev := range events {
//	    log.Printf("event %s: %v", ev.Kind, ev.Data)
//	}
package whatsapp
