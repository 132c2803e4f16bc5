package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dukerupert/airlink/internal/database"
	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/notify"
	"github.com/dukerupert/airlink/internal/store"
	"github.com/dukerupert/airlink/internal/tour"
	"github.com/dukerupert/airlink/internal/webhook"
	"github.com/dukerupert/airlink/internal/websocket"
)

const testSecret = "prova123"

type testEnv struct {
	db     *sql.DB
	mux    *http.ServeMux
	outbox *events.Outbox
}

func setupHandlers(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	outbox := events.NewOutbox(db, nil, logger)
	t.Cleanup(outbox.Wait)
	rec := events.NewRecorder(outbox, logger)
	hub := websocket.NewHub(logger)

	verifier, err := webhook.NewVerifier(webhook.VerifierConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	ledger := tour.NewLedger(db, rec, logger)
	registry := tour.NewRegistry(db, rec, logger)
	admission := tour.NewAdmission(db, rec, logger)
	terminator := tour.NewTerminator(db, rec, nil, nil, logger)

	lh := NewLicenseHandler(ledger, logger)
	sh := NewSessionHandler(registry, admission, terminator, hub, logger)
	eh := NewEventHandler(outbox, verifier, store.NewAuditStore(db), 50, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/licenses/activate", lh.Activate)
	mux.HandleFunc("POST /api/licenses/{id}/revoke", lh.Revoke)
	mux.HandleFunc("POST /api/licenses/{id}/reactivate", lh.Reactivate)
	mux.HandleFunc("POST /api/sessions", sh.Start)
	mux.HandleFunc("POST /api/sessions/join", sh.Join)
	mux.HandleFunc("GET /api/sessions/{id}", sh.Get)
	mux.HandleFunc("POST /api/sessions/{id}/end", sh.End)
	mux.HandleFunc("POST /api/listeners/{id}/leave", sh.Leave)
	mux.HandleFunc("POST /api/events", eh.Create)
	mux.HandleFunc("POST /api/events/retry", eh.Retry)
	mux.HandleFunc("POST /api/events/receive-hmac", eh.Receive)

	nh := NewNotifyHandler(notify.New(notify.Config{}, logger), logger)
	mux.HandleFunc("GET /api/admin/notify/config", nh.Config)
	mux.HandleFunc("POST /api/admin/notify/test", nh.Test)

	return &testEnv{db: db, mux: mux, outbox: outbox}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seedLicense(t *testing.T, code string) *model.License {
	t.Helper()
	l, err := store.NewLicenseStore(e.db).Create(context.Background(), code, 240, 10, time.Now().UTC())
	if err != nil {
		t.Fatalf("seed license: %v", err)
	}
	return l
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rec)["error"]
}

// startSession activates a license and starts a session through the API.
func (e *testEnv) startSession(t *testing.T, code string) model.Session {
	t.Helper()
	l := e.seedLicense(t, code)
	if rec := e.do(t, "POST", "/api/licenses/activate", map[string]string{"code": code}); rec.Code != http.StatusOK {
		t.Fatalf("activate: status = %d, body = %s", rec.Code, rec.Body)
	}
	rec := e.do(t, "POST", "/api/sessions", map[string]any{"license_id": l.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: status = %d, body = %s", rec.Code, rec.Body)
	}
	return decodeBody[model.Session](t, rec)
}

func signedRequest(t *testing.T, body []byte, ts int64) *http.Request {
	t.Helper()
	sig, err := webhook.Sign(testSecret, "sha256", ts, body)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	req := httptest.NewRequest("POST", "/api/events/receive-hmac", bytes.NewReader(body))
	req.Header.Set(webhook.DefaultTimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(webhook.DefaultSignatureHeader, sig)
	return req
}
