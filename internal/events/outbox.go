package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/airlink/internal/clock"
	"github.com/dukerupert/airlink/internal/metrics"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
	"github.com/dukerupert/airlink/internal/webhook"
)

// Outbox queues lifecycle events in event_log and delivers them to the
// configured webhook in background goroutines.
type Outbox struct {
	db      *sql.DB
	events  *store.OutboxStore
	audit   *store.AuditStore
	sender  *webhook.Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     clock.Func

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// Option configures an Outbox.
type Option func(*Outbox)

func WithClock(now clock.Func) Option {
	return func(o *Outbox) { o.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Outbox) { o.metrics = m }
}

// NewOutbox returns an outbox. A nil or unconfigured sender turns delivery
// into a no-op that marks events sent.
func NewOutbox(db *sql.DB, sender *webhook.Sender, logger *slog.Logger, opts ...Option) *Outbox {
	o := &Outbox{
		db:       db,
		events:   store.NewOutboxStore(db),
		audit:    store.NewAuditStore(db),
		sender:   sender,
		logger:   logger,
		now:      clock.Now,
		inflight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue validates payload, stores a queued event and schedules delivery.
// An invalid payload is returned as *ValidationError and nothing is written.
func (o *Outbox) Enqueue(ctx context.Context, eventType string, payload json.RawMessage) (*model.OutboxEvent, error) {
	ev, err := o.EnqueueTx(ctx, o.db, eventType, payload)
	if err != nil {
		return nil, err
	}
	o.Schedule(ev.ID)
	return ev, nil
}

// EnqueueTx validates and stores a queued event through q without scheduling
// it. Callers schedule the returned id once their transaction commits.
func (o *Outbox) EnqueueTx(ctx context.Context, q store.Querier, eventType string, payload json.RawMessage) (*model.OutboxEvent, error) {
	if err := Validate(eventType, payload); err != nil {
		return nil, err
	}
	ev, err := store.NewOutboxStore(q).Create(ctx, eventType, payload, o.now())
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	return ev, nil
}

// Schedule starts background delivery for each id not already in flight and
// returns the ids it scheduled.
func (o *Outbox) Schedule(ids ...string) []string {
	var scheduled []string
	for _, id := range ids {
		if id == "" {
			continue
		}
		o.mu.Lock()
		if o.inflight[id] {
			o.mu.Unlock()
			continue
		}
		o.inflight[id] = true
		o.wg.Add(1)
		o.mu.Unlock()

		scheduled = append(scheduled, id)
		go func(id string) {
			defer func() {
				o.mu.Lock()
				delete(o.inflight, id)
				o.mu.Unlock()
				o.wg.Done()
			}()
			if err := o.Deliver(context.Background(), id); err != nil {
				o.logger.Error("deliver event", "id", id, "error", err)
			}
		}(id)
	}
	return scheduled
}

// Wait blocks until every scheduled delivery has finished.
func (o *Outbox) Wait() {
	o.wg.Wait()
}

// Deliver makes one delivery pass for the event: no target configured marks
// it sent, an invalid stored payload marks it failed without sending, and
// otherwise the signed POST result decides the status.
func (o *Outbox) Deliver(ctx context.Context, id string) error {
	ev, err := o.events.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if ev == nil {
		return nil
	}

	if !o.sender.Configured() {
		o.metrics.ObserveDelivery("noop")
		return o.events.MarkSent(ctx, id, o.now())
	}

	target := o.sender.URL()
	if err := Validate(ev.EventType, ev.Payload); err != nil {
		return o.fail(ctx, ev, target, "validation_error: "+err.Error())
	}

	if err := o.sender.Send(ctx, ev.EventType, ev.Payload); err != nil {
		return o.fail(ctx, ev, target, err.Error())
	}

	if err := o.events.MarkSent(ctx, id, o.now()); err != nil {
		return err
	}
	o.metrics.ObserveDelivery(string(model.EventSent))
	o.logger.Info("event delivered", "id", id, "event_type", ev.EventType)
	o.recordAudit(ctx, TypeDeliverySent, map[string]any{
		"event_log_id": id,
		"target_url":   target,
	})
	return nil
}

func (o *Outbox) fail(ctx context.Context, ev *model.OutboxEvent, target, reason string) error {
	if err := o.events.MarkFailed(ctx, ev.ID, reason); err != nil {
		return err
	}
	o.metrics.ObserveDelivery(string(model.EventFailed))
	o.logger.Warn("event delivery failed", "id", ev.ID, "event_type", ev.EventType, "reason", reason)
	o.recordAudit(ctx, TypeDeliveryFailed, map[string]any{
		"event_log_id": ev.ID,
		"target_url":   target,
		"reason":       reason,
	})
	return nil
}

func (o *Outbox) recordAudit(ctx context.Context, eventType string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		o.logger.Warn("encode audit payload", "type", eventType, "error", err)
		return
	}
	_, err = o.audit.Create(ctx, model.AuditEvent{
		Type:      eventType,
		Payload:   raw,
		CreatedAt: o.now(),
	})
	if err != nil {
		o.logger.Warn("record audit event", "type", eventType, "error", err)
	}
}

// RetryFailed schedules up to limit of the most recent failed events and
// returns the ids that were scheduled.
func (o *Outbox) RetryFailed(ctx context.Context, limit int) ([]string, error) {
	if limit < 1 {
		limit = 1
	}
	ids, err := o.events.ListFailedIDs(ctx, limit)
	if err != nil {
		return nil, err
	}
	scheduled := o.Schedule(ids...)
	if len(scheduled) > 0 {
		o.logger.Info("retrying failed events", "count", len(scheduled))
	}
	return scheduled, nil
}

// Get returns the stored event or nil.
func (o *Outbox) Get(ctx context.Context, id string) (*model.OutboxEvent, error) {
	return o.events.GetByID(ctx, id)
}
