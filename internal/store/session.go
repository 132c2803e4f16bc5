package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/google/uuid"
)

type SessionStore struct {
	db Querier
}

func NewSessionStore(db Querier) *SessionStore {
	return &SessionStore{db: db}
}

func scanSession(scanner interface{ Scan(...any) error }) (*model.Session, error) {
	var s model.Session
	var active int
	var endedAt sql.NullTime
	var endReason sql.NullString
	err := scanner.Scan(
		&s.ID, &s.LicenseID, &s.PIN, &s.StartedAt, &s.ExpiresAt,
		&endedAt, &endReason, &s.MaxListeners, &active,
	)
	if err != nil {
		return nil, err
	}
	s.IsActive = active != 0
	s.StartedAt = s.StartedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		s.EndedAt = &t
	}
	if endReason.Valid {
		s.EndReason = &endReason.String
	}
	return &s, nil
}

const sessionCols = `id, license_id, pin, started_at, expires_at, ended_at, end_reason, max_listeners, is_active`

func (s *SessionStore) Create(ctx context.Context, licenseID, pin string, startedAt, expiresAt time.Time, maxListeners int) (*model.Session, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, license_id, pin, started_at, expires_at, max_listeners, is_active) VALUES (?, ?, ?, ?, ?, ?, 1)`,
		id, licenseID, pin, startedAt, expiresAt, maxListeners,
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *SessionStore) GetByID(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) GetActiveByPIN(ctx context.Context, pin string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE pin = ? AND is_active = 1`, pin)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session by pin: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) PINInUse(ctx context.Context, pin string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE pin = ? AND is_active = 1`, pin).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pin: %w", err)
	}
	return n > 0, nil
}

// MarkInactive releases the PIN of a session without ending it.
func (s *SessionStore) MarkInactive(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET is_active = 0 WHERE id = ? AND is_active = 1`, id)
	if err != nil {
		return false, fmt.Errorf("mark session inactive: %w", err)
	}
	return affected(res)
}

// End closes a session. It reports false when ended_at was already set.
func (s *SessionStore) End(ctx context.Context, id string, now time.Time, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0, ended_at = ?, end_reason = ? WHERE id = ? AND ended_at IS NULL`,
		now, reason, id,
	)
	if err != nil {
		return false, fmt.Errorf("end session: %w", err)
	}
	return affected(res)
}

// ListExpired returns sessions that are past expires_at and have not been
// ended, including ones already marked inactive by a join.
func (s *SessionStore) ListExpired(ctx context.Context, now time.Time) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE ended_at IS NULL AND expires_at <= ? ORDER BY expires_at`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}
