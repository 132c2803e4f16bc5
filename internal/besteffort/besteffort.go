// Package besteffort runs side effects whose failure must never fail the
// caller. Errors and panics are logged as warnings and counted.
package besteffort

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/airlink/internal/metrics"
)

// Result describes one best-effort run.
type Result struct {
	Op       string
	Err      error
	Duration time.Duration
}

// OK reports whether the operation completed without error.
func (r Result) OK() bool { return r.Err == nil }

// Executor runs best-effort operations. The zero value and a nil *Executor
// are both usable.
type Executor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(logger *slog.Logger, m *metrics.Metrics) *Executor {
	return &Executor{logger: logger, metrics: m}
}

// Do runs fn and converts any error or panic into a warning.
func (e *Executor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) (res Result) {
	res.Op = op
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("panic: %v", r)
		}
		res.Duration = time.Since(start)
		e.report(ctx, res)
	}()
	res.Err = fn(ctx)
	return res
}

func (e *Executor) report(ctx context.Context, res Result) {
	var logger *slog.Logger
	var m *metrics.Metrics
	if e != nil {
		logger, m = e.logger, e.metrics
	}
	if logger == nil {
		logger = slog.Default()
	}

	if res.Err != nil {
		logger.WarnContext(ctx, "best-effort operation failed", "op", res.Op, "error", res.Err, "duration", res.Duration)
		m.ObserveBestEffort(res.Op, "error")
		return
	}
	m.ObserveBestEffort(res.Op, "ok")
}
