// Package tour implements the session-licensing core: license activation,
// session start with PIN allocation, listener admission, idempotent session
// termination and the expiry sweep.
package tour

import (
	"database/sql"
	"log/slog"

	"github.com/dukerupert/airlink/internal/clock"
	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/metrics"
	"github.com/dukerupert/airlink/internal/notify"
	"github.com/dukerupert/airlink/internal/pin"
)

// Option configures a tour component.
type Option func(*deps)

// WithClock overrides the time source.
func WithClock(now clock.Func) Option {
	return func(d *deps) { d.now = now }
}

// WithMetrics records counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

// WithNotifier sends admin notifications for session starts, joins and ends.
func WithNotifier(n *notify.Notifier) Option {
	return func(d *deps) { d.notifier = n }
}

// WithPINGenerator overrides PIN generation. Used by Registry.
func WithPINGenerator(g pin.Generator) Option {
	return func(d *deps) { d.genPIN = g }
}

type deps struct {
	db       *sql.DB
	recorder *events.Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
	notifier *notify.Notifier
	now      clock.Func
	genPIN   pin.Generator
}

func newDeps(db *sql.DB, recorder *events.Recorder, logger *slog.Logger, opts []Option) deps {
	d := deps{
		db:       db,
		recorder: recorder,
		logger:   logger,
		now:      clock.Now,
		genPIN:   pin.Generate,
	}
	for _, o := range opts {
		o(&d)
	}
	if d.recorder == nil {
		d.recorder = events.NewRecorder(nil, logger)
	}
	return d
}

func strPtr(s string) *string { return &s }
