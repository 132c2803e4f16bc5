package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
	"github.com/dukerupert/airlink/internal/webhook"
)

// TypeWebhookReceived is the audit type for verified inbound deliveries.
const TypeWebhookReceived = "webhook_received"

type EventHandler struct {
	outbox     *events.Outbox
	verifier   *webhook.Verifier
	audit      *store.AuditStore
	retryLimit int
	logger     *slog.Logger
}

func NewEventHandler(outbox *events.Outbox, verifier *webhook.Verifier, audit *store.AuditStore, retryLimit int, logger *slog.Logger) *EventHandler {
	if retryLimit < 1 {
		retryLimit = 200
	}
	return &EventHandler{outbox: outbox, verifier: verifier, audit: audit, retryLimit: retryLimit, logger: logger}
}

type eventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// Create handles POST /api/events
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ev, err := h.outbox.Enqueue(r.Context(), req.EventType, req.Payload)
	if err != nil {
		var verr *events.ValidationError
		switch {
		case errors.Is(err, events.ErrUnknownEventType):
			writeMessage(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &verr):
			writeMessage(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.logger.Error("enqueue event", "event_type", req.EventType, "error", err)
			writeMessage(w, http.StatusInternalServerError, "failed to enqueue event")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, ev)
}

// Retry handles POST /api/events/retry?limit=N
func (h *EventHandler) Retry(w http.ResponseWriter, r *http.Request) {
	limit := h.retryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ids, err := h.outbox.RetryFailed(r.Context(), limit)
	if err != nil {
		h.logger.Error("retry failed events", "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to retry events")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"scheduled": ids, "count": len(ids)})
}

// Receive handles POST /api/events/receive-hmac. Only a request whose
// signature verifies is parsed, validated and recorded.
func (h *EventHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "failed to read body")
		return
	}

	eventType, err := h.verifier.Verify(body, r.Header)
	if err != nil {
		switch {
		case errors.Is(err, webhook.ErrNoSecret):
			writeMessage(w, http.StatusServiceUnavailable, "webhook receiving is not configured")
		case errors.Is(err, webhook.ErrMissingTimestamp),
			errors.Is(err, webhook.ErrInvalidTimestamp),
			errors.Is(err, webhook.ErrMissingSignature):
			writeMessage(w, http.StatusBadRequest, "invalid signature: "+err.Error())
		case errors.Is(err, webhook.ErrStaleTimestamp),
			errors.Is(err, webhook.ErrSignatureMismatch):
			writeMessage(w, http.StatusUnauthorized, "invalid signature: "+err.Error())
		default:
			h.logger.Error("verify webhook", "error", err)
			writeMessage(w, http.StatusInternalServerError, "verification failed")
		}
		return
	}

	var env eventRequest
	stored := json.RawMessage(body)
	if err := json.Unmarshal(body, &env); err != nil {
		stored, _ = json.Marshal(map[string]string{"raw": string(body)})
	}
	if eventType == "" {
		eventType = "unknown"
	}

	if events.KnownType(eventType) {
		if err := events.Validate(eventType, env.Payload); err != nil {
			writeMessage(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	}

	_, err = h.audit.Create(r.Context(), model.AuditEvent{
		Type:        TypeWebhookReceived,
		Description: "event_type=" + eventType,
		Payload:     stored,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("record inbound event", "event_type", eventType, "error", err)
		writeMessage(w, http.StatusInternalServerError, "failed to record event")
		return
	}

	h.logger.Info("webhook received", "event_type", eventType)
	w.WriteHeader(http.StatusNoContent)
}
