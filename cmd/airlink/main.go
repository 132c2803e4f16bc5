package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/airlink/internal/besteffort"
	"github.com/dukerupert/airlink/internal/config"
	"github.com/dukerupert/airlink/internal/database"
	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/killswitch"
	"github.com/dukerupert/airlink/internal/logging"
	"github.com/dukerupert/airlink/internal/metrics"
	"github.com/dukerupert/airlink/internal/notify"
	"github.com/dukerupert/airlink/internal/rtc"
	"github.com/dukerupert/airlink/internal/scheduler"
	"github.com/dukerupert/airlink/internal/server"
	"github.com/dukerupert/airlink/internal/tour"
	"github.com/dukerupert/airlink/internal/webhook"
	ws "github.com/dukerupert/airlink/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "airlink: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	m := metrics.New()

	sender, err := webhook.NewSender(cfg.Sender(), webhook.WithLogger(logger.With("component", "webhook")))
	if err != nil {
		return fmt.Errorf("webhook sender: %w", err)
	}
	verifier, err := webhook.NewVerifier(cfg.Verifier())
	if err != nil {
		return fmt.Errorf("webhook verifier: %w", err)
	}
	if !verifier.Configured() {
		logger.Warn("no HMAC secret configured, inbound webhooks are rejected")
	}
	if !sender.Configured() {
		logger.Warn("no webhook URL configured, events are recorded but not delivered")
	}

	outbox := events.NewOutbox(db, sender, logger.With("component", "outbox"), events.WithMetrics(m))
	recorder := events.NewRecorder(outbox, logger.With("component", "recorder"))

	hub := ws.NewHub(logger.With("component", "websocket"))
	rtcClient := rtc.NewClient(rtc.Config{
		AppID:          cfg.RTCAppID,
		CustomerID:     cfg.RTCCustomerID,
		CustomerSecret: cfg.RTCCustomerSecret,
		BaseURL:        cfg.RTCBaseURL,
	})
	kill := killswitch.Chain{
		killswitch.Room{Hub: hub},
		killswitch.Channel{Client: rtcClient},
	}

	notifier := notify.New(cfg.Notify(), logger.With("component", "notify"))

	tourLogger := logger.With("component", "tour")
	opts := []tour.Option{tour.WithMetrics(m), tour.WithNotifier(notifier)}
	ledger := tour.NewLedger(db, recorder, tourLogger, opts...)
	registry := tour.NewRegistry(db, recorder, tourLogger, opts...)
	admission := tour.NewAdmission(db, recorder, tourLogger, opts...)
	terminator := tour.NewTerminator(db, recorder, kill, besteffort.New(logger.With("component", "besteffort"), m), tourLogger, opts...)
	sweeper := tour.NewSweeper(db, terminator, logger.With("component", "sweeper"))

	srv := server.New(db, server.Services{
		Ledger:     ledger,
		Registry:   registry,
		Admission:  admission,
		Terminator: terminator,
		Outbox:     outbox,
		Verifier:   verifier,
		Hub:        hub,
		Metrics:    m,
		Notifier:   notifier,
	}, server.Config{
		AdminKey:       cfg.AdminKey,
		JoinRateLimit:  cfg.JoinRateLimit,
		JoinRateWindow: cfg.JoinRateWindow,
		RetryLimit:     cfg.RetryLimit,
	}, logger)

	sched := scheduler.New(logger,
		scheduler.Job{Name: "expiry-sweep", Interval: cfg.SweepInterval, Run: sweeper.Run},
		scheduler.Job{Name: "event-retry", Interval: cfg.RetryInterval, Run: func(ctx context.Context) error {
			ids, err := outbox.RetryFailed(ctx, cfg.RetryLimit)
			if len(ids) > 0 {
				logger.Info("failed events rescheduled", "count", len(ids))
			}
			return err
		}},
		scheduler.Job{Name: "rate-limit-cleanup", Interval: 5 * time.Minute, Run: func(context.Context) error {
			srv.RateLimiter().Cleanup(3 * time.Minute)
			return nil
		}},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SchedulerEnabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	} else {
		logger.Info("scheduler disabled")
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("airlink listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down")
	if err := sched.Stop(); err != nil {
		logger.Error("stop scheduler", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	outbox.Wait()
	return nil
}

