package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// WebSocket event stream. Browsers cannot set an Authorization
		// header on the upgrade request, so the token is validated in the
		// handler (query parameter or header).
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", s.handleListSessions)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/status", s.handleSessionStatus)
					r.Post("/send", s.handleSend)
					r.Post("/notify", s.handleNotify)
					r.Get("/chats", s.handleListChats)
					r.Post("/logout", s.handleLogout)
					r.Get("/messages", s.handleListMessages)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"sessions": s.sessions.Len(),
	})
}
