package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/handler"
	"github.com/dukerupert/airlink/internal/metrics"
	"github.com/dukerupert/airlink/internal/middleware"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/notify"
	"github.com/dukerupert/airlink/internal/store"
	"github.com/dukerupert/airlink/internal/tour"
	"github.com/dukerupert/airlink/internal/webhook"
	ws "github.com/dukerupert/airlink/internal/websocket"
)

// Services are the domain components the HTTP surface exposes.
type Services struct {
	Ledger     *tour.Ledger
	Registry   *tour.Registry
	Admission  *tour.Admission
	Terminator *tour.Terminator
	Outbox     *events.Outbox
	Verifier   *webhook.Verifier
	Hub        *ws.Hub
	Metrics    *metrics.Metrics
	Notifier   *notify.Notifier
}

type Config struct {
	AdminKey       string
	JoinRateLimit  int
	JoinRateWindow time.Duration
	RetryLimit     int
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	admission   *tour.Admission
	metrics     *metrics.Metrics
	licenseH    *handler.LicenseHandler
	sessionH    *handler.SessionHandler
	eventH      *handler.EventHandler
	notifyH     *handler.NotifyHandler
	rateLimiter *middleware.RateLimiter
	adminKey    string
	logger      *slog.Logger
}

func New(db *sql.DB, svc Services, cfg Config, logger *slog.Logger) *Server {
	if cfg.JoinRateLimit < 1 {
		cfg.JoinRateLimit = 30
	}
	if cfg.JoinRateWindow <= 0 {
		cfg.JoinRateWindow = time.Minute
	}

	return &Server{
		db:          db,
		hub:         svc.Hub,
		admission:   svc.Admission,
		metrics:     svc.Metrics,
		licenseH:    handler.NewLicenseHandler(svc.Ledger, logger.With("component", "license")),
		sessionH:    handler.NewSessionHandler(svc.Registry, svc.Admission, svc.Terminator, svc.Hub, logger.With("component", "session")),
		eventH:      handler.NewEventHandler(svc.Outbox, svc.Verifier, store.NewAuditStore(db), cfg.RetryLimit, logger.With("component", "events")),
		notifyH:     handler.NewNotifyHandler(svc.Notifier, logger.With("component", "notify")),
		rateLimiter: middleware.NewRateLimiter(cfg.JoinRateLimit, cfg.JoinRateWindow),
		adminKey:    cfg.AdminKey,
		logger:      logger,
	}
}

// RateLimiter returns the join rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/licenses/activate", s.licenseH.Activate)
	mux.HandleFunc("POST /api/sessions", s.sessionH.Start)
	mux.HandleFunc("GET /api/sessions/{id}", s.sessionH.Get)
	mux.HandleFunc("POST /api/sessions/{id}/end", s.sessionH.End)
	mux.HandleFunc("POST /api/sessions/join", s.rateLimitedHandler(s.sessionH.Join))
	mux.HandleFunc("POST /api/listeners/{id}/leave", s.sessionH.Leave)
	mux.HandleFunc("POST /api/events/receive-hmac", s.eventH.Receive)
	mux.HandleFunc("GET /ws/{pin}", ws.HandleWebSocket(s.hub, s.admission, s.logger.With("component", "websocket")))

	admin := middleware.RequireAdminKey(s.adminKey)
	mux.Handle("POST /api/licenses/{id}/revoke", admin(http.HandlerFunc(s.licenseH.Revoke)))
	mux.Handle("POST /api/licenses/{id}/reactivate", admin(http.HandlerFunc(s.licenseH.Reactivate)))
	mux.Handle("POST /api/events", admin(http.HandlerFunc(s.eventH.Create)))
	mux.Handle("POST /api/events/retry", admin(http.HandlerFunc(s.eventH.Retry)))
	mux.Handle("GET /api/admin/notify/config", admin(http.HandlerFunc(s.notifyH.Config)))
	mux.Handle("POST /api/admin/notify/test", admin(http.HandlerFunc(s.notifyH.Test)))

	return middleware.RequestLogger(s.logger.With("component", "http"), s.metrics)(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":  status,
		"clients": s.hub.ClientCount(),
	}
	if code == http.StatusOK {
		counts, err := store.NewOutboxStore(s.db).CountByStatus(ctx)
		if err != nil {
			s.logger.Error("health outbox counts", "error", err)
			body["status"], code = "degraded", http.StatusServiceUnavailable
		} else {
			body["outbox"] = map[string]int{
				"queued": counts[model.EventQueued],
				"sent":   counts[model.EventSent],
				"failed": counts[model.EventFailed],
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(h).ServeHTTP(w, r)
	}
}
