// Package messagelog persists messages observed through bridge sessions.
//
// Inbound messages arrive via an event subscription on each session's
// client; outbound sends are recorded after the bridge accepts them. The
// log backs the "last message" and recent-history queries exposed by the
// REST API and keeps working across process restarts.
//
// Storage is the shared SQLite database; the schema lives in the
// embedded migrations (messages table).
package messagelog
