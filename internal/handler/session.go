package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/airlink/internal/tour"
	"github.com/dukerupert/airlink/internal/websocket"
)

type SessionHandler struct {
	registry   *tour.Registry
	admission  *tour.Admission
	terminator *tour.Terminator
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewSessionHandler(reg *tour.Registry, adm *tour.Admission, term *tour.Terminator, hub *websocket.Hub, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{registry: reg, admission: adm, terminator: term, hub: hub, logger: logger}
}

// broadcastCount pushes the connected listener count to the session room.
func (h *SessionHandler) broadcastCount(ctx context.Context, sessionID string) {
	if h.hub == nil {
		return
	}
	v, err := h.registry.Get(ctx, sessionID)
	if err != nil {
		h.logger.Warn("listener count", "session_id", sessionID, "error", err)
		return
	}
	h.hub.Broadcast(v.PIN, websocket.Message{
		Type:  websocket.TypeListenerCount,
		PIN:   v.PIN,
		Extra: map[string]any{"connected_listeners": v.ConnectedListeners},
	})
}

type startRequest struct {
	LicenseID    string `json:"license_id"`
	MaxListeners int    `json:"max_listeners"`
}

// Start handles POST /api/sessions
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.LicenseID) == "" {
		writeMessage(w, http.StatusBadRequest, "license_id is required")
		return
	}

	sess, err := h.registry.Start(r.Context(), req.LicenseID, req.MaxListeners)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// Get handles GET /api/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// End handles POST /api/sessions/{id}/end
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	ok, err := h.terminator.End(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeMessage(w, http.StatusNotFound, string(tour.KindSessionNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ended": true})
}

type joinRequest struct {
	PIN         string `json:"pin"`
	DisplayName string `json:"display_name"`
}

// Join handles POST /api/sessions/join
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	li, err := h.admission.Join(r.Context(), req.PIN, req.DisplayName)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.broadcastCount(r.Context(), li.SessionID)
	writeJSON(w, http.StatusCreated, li)
}

// Leave handles POST /api/listeners/{id}/leave
func (h *SessionHandler) Leave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	status, err := h.admission.Leave(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}
