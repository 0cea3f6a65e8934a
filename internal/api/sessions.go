package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-whatsapp/internal/messagelog"
	"github.com/nerrad567/gray-logic-whatsapp/internal/notify"
	"github.com/nerrad567/gray-logic-whatsapp/internal/session"
	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

// sessionSummary is one entry in the session listing.
type sessionSummary struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Listener string `json:"listener"`
}

// sendRequest is the body for POST /sessions/{id}/send.
type sendRequest struct {
	To            string `json:"to"`
	Message       string `json:"message"`
	MediaURL      string `json:"media_url,omitempty"`
	MediaFilename string `json:"media_filename,omitempty"`
}

// notifyRequest is the body for POST /sessions/{id}/notify.
type notifyRequest struct {
	Targets       []string `json:"targets"`
	Message       string   `json:"message"`
	MediaURL      string   `json:"media_url,omitempty"`
	MediaFilename string   `json:"media_filename,omitempty"`
}

// handleListSessions returns every registered session with its current
// status and listener state.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	ids := s.sessions.IDs()
	sessions := make([]sessionSummary, 0, len(ids))
	for _, id := range ids {
		client, err := s.sessions.Get(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, sessionSummary{
			ID:       id,
			Status:   string(client.Status()),
			Listener: string(client.State()),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleSessionStatus queries the bridge server for the session's live
// status and returns the full payload.
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	client, ok := s.sessionClient(w, r)
	if !ok {
		return
	}

	payload, err := client.CheckConnection(r.Context())
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, payload)
}

// handleSend posts one outbound message through the session.
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	client, ok := s.sessionClient(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "to is required")
		return
	}

	err := client.SendMessage(r.Context(), whatsapp.SendRequest{
		To:            req.To,
		Message:       req.Message,
		MediaURL:      req.MediaURL,
		MediaFilename: req.MediaFilename,
	})
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}

// handleNotify fans one message out to multiple targets through the
// session. Partial failures return 502 with the joined error message;
// delivery to the remaining targets still happens.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	client, ok := s.sessionClient(w, r)
	if !ok {
		return
	}

	var req notifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	svc := notify.NewService(client, s.logger)
	err := svc.Send(r.Context(), notify.Notification{
		Targets:       req.Targets,
		Message:       req.Message,
		MediaURL:      req.MediaURL,
		MediaFilename: req.MediaFilename,
	})
	if errors.Is(err, notify.ErrNoTargets) {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "at least one target is required")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeBridgeError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "sent",
		"targets": len(req.Targets),
	})
}

// handleListChats returns the bridge server's conversation listing.
func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	client, ok := s.sessionClient(w, r)
	if !ok {
		return
	}

	chats, err := client.ListChats(r.Context())
	if err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"chats": chats,
		"count": len(chats),
	})
}

// handleLogout asks the bridge server to end the messaging session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	client, ok := s.sessionClient(w, r)
	if !ok {
		return
	}

	if err := client.Logout(r.Context()); err != nil {
		writeBridgeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

// handleListMessages returns recent messages from the message log.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		writeNotFound(w, "message log not configured")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(id); err != nil {
		writeNotFound(w, "session not found: "+id)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	messages, err := s.messages.Recent(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("message log query failed", "session_id", id, "error", err)
		writeInternalError(w, "message log query failed")
		return
	}
	if messages == nil {
		messages = []messagelog.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// sessionClient resolves the {id} URL parameter to a client, writing a
// 404 when the session is not registered.
func (s *Server) sessionClient(w http.ResponseWriter, r *http.Request) (*whatsapp.Client, bool) {
	id := chi.URLParam(r, "id")
	client, err := s.sessions.Get(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeNotFound(w, "session not found: "+id)
		} else {
			writeInternalError(w, "session lookup failed")
		}
		return nil, false
	}
	return client, true
}

// writeBridgeError maps a bridge client error to an HTTP response.
func writeBridgeError(w http.ResponseWriter, err error) {
	var sendErr *whatsapp.SendError
	var bridgeErr *whatsapp.BridgeError

	switch {
	case errors.Is(err, whatsapp.ErrUnreachable):
		writeError(w, http.StatusBadGateway, ErrCodeBridgeUnreachable, "bridge server unreachable")
	case errors.Is(err, whatsapp.ErrUnauthorized):
		writeError(w, http.StatusBadGateway, ErrCodeBridgeRejected, "bridge server rejected credentials")
	case errors.As(err, &sendErr):
		writeError(w, http.StatusBadGateway, ErrCodeBridgeRejected, sendErr.Reason)
	case errors.As(err, &bridgeErr):
		writeError(w, http.StatusBadGateway, ErrCodeBridgeError, bridgeErr.Error())
	default:
		writeError(w, http.StatusBadGateway, ErrCodeBridgeError, err.Error())
	}
}
