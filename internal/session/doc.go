// Package session tracks the bridge clients owned by this process.
//
// Each configured bridge server becomes one session: a stable identifier
// mapped to a whatsapp.Client. The registry is the single owner of client
// lifecycles; consumers (MQTT relay, REST API, notifier) look clients up
// by session ID and never hold them beyond a call.
//
// Removal stops the client's listener before dropping it, so a removed
// session leaves no background goroutine behind.
package session
