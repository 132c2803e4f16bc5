package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
	"github.com/dukerupert/airlink/internal/webhook"
)

func TestCreateEvent(t *testing.T) {
	e := setupHandlers(t)

	rec := e.do(t, "POST", "/api/events", map[string]any{
		"event_type": "session_started",
		"payload":    map[string]any{"session_id": uuid.NewString(), "pin": "ABC123"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	ev := decodeBody[model.OutboxEvent](t, rec)
	if ev.ID == "" {
		t.Error("event id is empty")
	}
}

func TestCreateEventInvalid(t *testing.T) {
	e := setupHandlers(t)

	rec := e.do(t, "POST", "/api/events", map[string]any{
		"event_type": "session_started",
		"payload":    map[string]any{"pin": "ABC123"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing field: status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}

	rec = e.do(t, "POST", "/api/events", map[string]any{
		"event_type": "something_else",
		"payload":    map[string]any{},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown type: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var n int
	if err := e.db.QueryRow(`SELECT COUNT(*) FROM event_log`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("event_log rows = %d, want 0", n)
	}
}

func TestRetryEvents(t *testing.T) {
	e := setupHandlers(t)
	ctx := context.Background()
	outbox := store.NewOutboxStore(e.db)
	ev, err := outbox.Create(ctx, "session_ended", json.RawMessage(`{"session_id":"x","duration_seconds":1}`), time.Now().UTC())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := outbox.MarkFailed(ctx, ev.ID, "HTTP 500"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	rec := e.do(t, "POST", "/api/events/retry?limit=5", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	got := decodeBody[struct {
		Scheduled []string `json:"scheduled"`
		Count     int      `json:"count"`
	}](t, rec)
	if got.Count != 1 || got.Scheduled[0] != ev.ID {
		t.Errorf("scheduled = %v, want [%s]", got.Scheduled, ev.ID)
	}

	rec = e.do(t, "POST", "/api/events/retry?limit=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReceiveSignedEvent(t *testing.T) {
	e := setupHandlers(t)
	body := []byte(`{"event_type":"session_ended","payload":{"session_id":"` + uuid.NewString() + `","duration_seconds":42}}`)

	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, signedRequest(t, body, time.Now().Unix()))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	evs, err := store.NewAuditStore(e.db).ListByType(context.Background(), TypeWebhookReceived, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("recorded %d events, want 1", len(evs))
	}
	if evs[0].Description != "event_type=session_ended" {
		t.Errorf("description = %q", evs[0].Description)
	}
}

func TestReceiveRejects(t *testing.T) {
	e := setupHandlers(t)
	body := []byte(`{"event_type":"session_ended","payload":{"session_id":"` + uuid.NewString() + `","duration_seconds":42}}`)
	now := time.Now().Unix()

	tampered := signedRequest(t, body, now)
	tampered.Body = http.NoBody
	tampered.ContentLength = 0

	stale := signedRequest(t, body, now-301)

	missing := signedRequest(t, body, now)
	missing.Header.Del("X-Webhook-Timestamp")

	invalid := signedRequest(t, []byte(`{"event_type":"session_ended","payload":{"duration_seconds":-1}}`), now)

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"tampered body", tampered, http.StatusUnauthorized},
		{"stale timestamp", stale, http.StatusUnauthorized},
		{"missing timestamp", missing, http.StatusBadRequest},
		{"invalid payload", invalid, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			e.mux.ServeHTTP(rec, tt.req)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d; body = %s", rec.Code, tt.code, rec.Body)
			}
		})
	}

	evs, err := store.NewAuditStore(e.db).ListByType(context.Background(), TypeWebhookReceived, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("recorded %d events, want 0", len(evs))
	}
}

func TestReceiveWithoutSecret(t *testing.T) {
	e := setupHandlers(t)
	verifier, err := webhook.NewVerifier(webhook.VerifierConfig{})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewEventHandler(e.outbox, verifier, store.NewAuditStore(e.db), 50, logger)

	body := []byte(`{"event_type":"x","payload":{}}`)
	ts := time.Now().Unix()
	sig, err := webhook.Sign("", "sha256", ts, body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/events/receive-hmac", bytes.NewReader(body))
	req.Header.Set(webhook.DefaultTimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(webhook.DefaultSignatureHeader, sig)

	rec := httptest.NewRecorder()
	h.Receive(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	evs, err := store.NewAuditStore(e.db).ListByType(context.Background(), TypeWebhookReceived, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("recorded %d events, want 0", len(evs))
	}
}
