package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/google/uuid"
)

// AuditStore records lifecycle events in the events table.
type AuditStore struct {
	db Querier
}

func NewAuditStore(db Querier) *AuditStore {
	return &AuditStore{db: db}
}

func scanAuditEvent(scanner interface{ Scan(...any) error }) (*model.AuditEvent, error) {
	var e model.AuditEvent
	var description, sessionID, licenseCode, payload sql.NullString
	err := scanner.Scan(&e.ID, &e.Type, &description, &sessionID, &licenseCode, &payload, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Description = description.String
	e.CreatedAt = e.CreatedAt.UTC()
	if sessionID.Valid {
		e.SessionID = &sessionID.String
	}
	if licenseCode.Valid {
		e.LicenseCode = &licenseCode.String
	}
	if payload.Valid {
		e.Payload = json.RawMessage(payload.String)
	}
	return &e, nil
}

const auditCols = `id, type, description, session_id, license_code, payload, created_at`

// Create stores e. ID is assigned when empty.
func (s *AuditStore) Create(ctx context.Context, e model.AuditEvent) (*model.AuditEvent, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	var payload sql.NullString
	if len(e.Payload) > 0 {
		payload = sql.NullString{String: string(e.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, type, description, session_id, license_code, payload, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.Description, nullString(e.SessionID), nullString(e.LicenseCode), payload, e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert audit event: %w", err)
	}
	return &e, nil
}

func (s *AuditStore) ListBySession(ctx context.Context, sessionID string) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditCols+` FROM events WHERE session_id = ? ORDER BY created_at, rowid`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()
	return collectAuditEvents(rows)
}

func (s *AuditStore) ListByType(ctx context.Context, eventType string, limit int) ([]model.AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditCols+` FROM events WHERE type = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		eventType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events by type: %w", err)
	}
	defer rows.Close()
	return collectAuditEvents(rows)
}

func collectAuditEvents(rows *sql.Rows) ([]model.AuditEvent, error) {
	var events []model.AuditEvent
	for rows.Next() {
		e, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
