package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
)

// Record is one lifecycle fact written to the audit log and, when its type
// has a schema, to the outbox.
type Record struct {
	Type        string
	Description string
	SessionID   *string
	LicenseCode *string
	Payload     map[string]any
}

// Recorder writes lifecycle records inside the caller's transaction. Write
// failures are logged and never returned, so a broken audit trail cannot
// fail a state change.
type Recorder struct {
	outbox *Outbox
	logger *slog.Logger
}

func NewRecorder(outbox *Outbox, logger *slog.Logger) *Recorder {
	return &Recorder{outbox: outbox, logger: logger}
}

// Record writes rec through q and returns the outbox id to schedule after
// commit, or "" when nothing was queued.
func (r *Recorder) Record(ctx context.Context, q store.Querier, rec Record, now time.Time) string {
	var raw json.RawMessage
	if rec.Payload != nil {
		b, err := json.Marshal(rec.Payload)
		if err != nil {
			r.logger.Warn("encode event payload", "type", rec.Type, "error", err)
		} else {
			raw = b
		}
	}

	_, err := store.NewAuditStore(q).Create(ctx, model.AuditEvent{
		Type:        rec.Type,
		Description: rec.Description,
		SessionID:   rec.SessionID,
		LicenseCode: rec.LicenseCode,
		Payload:     raw,
		CreatedAt:   now,
	})
	if err != nil {
		r.logger.Warn("record audit event", "type", rec.Type, "error", err)
	}

	if r.outbox == nil || !KnownType(rec.Type) {
		return ""
	}
	ev, err := r.outbox.EnqueueTx(ctx, q, rec.Type, raw)
	if err != nil {
		r.logger.Warn("queue lifecycle event", "type", rec.Type, "error", err)
		return ""
	}
	return ev.ID
}

// Schedule starts delivery of ids returned by Record.
func (r *Recorder) Schedule(ids ...string) {
	if r.outbox == nil {
		return
	}
	r.outbox.Schedule(ids...)
}
