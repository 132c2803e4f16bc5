package besteffort

import (
	"context"
	"errors"
	"testing"

	"github.com/dukerupert/airlink/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDoSuccess(t *testing.T) {
	m := metrics.New()
	e := New(nil, m)

	res := e.Do(context.Background(), "noop", func(context.Context) error { return nil })
	if !res.OK() {
		t.Fatalf("err = %v, want nil", res.Err)
	}
	if got := testutil.ToFloat64(m.BestEffort.WithLabelValues("noop", "ok")); got != 1 {
		t.Errorf("ok counter = %v, want 1", got)
	}
}

func TestDoError(t *testing.T) {
	m := metrics.New()
	e := New(nil, m)
	boom := errors.New("boom")

	res := e.Do(context.Background(), "kill", func(context.Context) error { return boom })
	if !errors.Is(res.Err, boom) {
		t.Errorf("err = %v, want boom", res.Err)
	}
	if got := testutil.ToFloat64(m.BestEffort.WithLabelValues("kill", "error")); got != 1 {
		t.Errorf("error counter = %v, want 1", got)
	}
}

func TestDoRecoversPanic(t *testing.T) {
	var e *Executor
	res := e.Do(context.Background(), "panicky", func(context.Context) error { panic("oh no") })
	if res.Err == nil {
		t.Fatal("expected panic to be converted into an error")
	}
	if res.Op != "panicky" {
		t.Errorf("op = %q, want panicky", res.Op)
	}
}
