package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/google/uuid"
)

// OutboxStore persists outbound webhook events in event_log.
type OutboxStore struct {
	db Querier
}

func NewOutboxStore(db Querier) *OutboxStore {
	return &OutboxStore{db: db}
}

func scanOutboxEvent(scanner interface{ Scan(...any) error }) (*model.OutboxEvent, error) {
	var e model.OutboxEvent
	var payload string
	var lastError sql.NullString
	var deliveredAt sql.NullTime
	err := scanner.Scan(
		&e.ID, &e.EventType, &payload, &e.Status, &e.Retries,
		&lastError, &e.CreatedAt, &deliveredAt,
	)
	if err != nil {
		return nil, err
	}
	e.Payload = json.RawMessage(payload)
	e.CreatedAt = e.CreatedAt.UTC()
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time.UTC()
		e.DeliveredAt = &t
	}
	return &e, nil
}

const outboxCols = `id, event_type, payload, status, retries, last_error, created_at, delivered_at`

func (s *OutboxStore) Create(ctx context.Context, eventType string, payload json.RawMessage, now time.Time) (*model.OutboxEvent, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_log (id, event_type, payload, status, retries, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		id, eventType, string(payload), model.EventQueued, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *OutboxStore) GetByID(ctx context.Context, id string) (*model.OutboxEvent, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+outboxCols+` FROM event_log WHERE id = ?`, id)
	e, err := scanOutboxEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outbox event: %w", err)
	}
	return e, nil
}

func (s *OutboxStore) MarkSent(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE event_log SET status = ?, delivered_at = ?, last_error = NULL WHERE id = ?`,
		model.EventSent, now, id,
	)
	if err != nil {
		return fmt.Errorf("mark event sent: %w", err)
	}
	return nil
}

func (s *OutboxStore) MarkFailed(ctx context.Context, id, lastError string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE event_log SET status = ?, retries = retries + 1, last_error = ? WHERE id = ?`,
		model.EventFailed, lastError, id,
	)
	if err != nil {
		return fmt.Errorf("mark event failed: %w", err)
	}
	return nil
}

// ListFailedIDs returns up to limit failed event ids, newest first.
func (s *OutboxStore) ListFailedIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM event_log WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		model.EventFailed, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed events: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByStatus returns the number of outbox rows per status.
func (s *OutboxStore) CountByStatus(ctx context.Context) (map[model.EventStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM event_log GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count outbox events: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.EventStatus]int)
	for rows.Next() {
		var status model.EventStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
