package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/google/uuid"
)

type LicenseStore struct {
	db Querier
}

func NewLicenseStore(db Querier) *LicenseStore {
	return &LicenseStore{db: db}
}

func scanLicense(scanner interface{ Scan(...any) error }) (*model.License, error) {
	var l model.License
	var active int
	var activatedAt, consumedAt, revokedAt sql.NullTime
	err := scanner.Scan(
		&l.ID, &l.Code, &l.DurationMinutes, &l.MaxListeners, &active,
		&activatedAt, &consumedAt, &revokedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.IsActive = active != 0
	if activatedAt.Valid {
		t := activatedAt.Time.UTC()
		l.ActivatedAt = &t
	}
	if consumedAt.Valid {
		t := consumedAt.Time.UTC()
		l.ConsumedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		l.RevokedAt = &t
	}
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}

const licenseCols = `id, code, duration_minutes, max_listeners, is_active, activated_at, consumed_at, revoked_at, created_at, updated_at`

func (s *LicenseStore) Create(ctx context.Context, code string, durationMinutes, maxListeners int, now time.Time) (*model.License, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO licenses (id, code, duration_minutes, max_listeners, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, 0, ?, ?)`,
		id, code, durationMinutes, maxListeners, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert license: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *LicenseStore) GetByID(ctx context.Context, id string) (*model.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE id = ?`, id)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return l, nil
}

func (s *LicenseStore) GetByCode(ctx context.Context, code string) (*model.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE code = ?`, code)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license by code: %w", err)
	}
	return l, nil
}

// Activate flips a never-activated license to active. It reports false when
// the license was already activated or revoked.
func (s *LicenseStore) Activate(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET is_active = 1, activated_at = ?, updated_at = ?
		 WHERE id = ? AND activated_at IS NULL AND revoked_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("activate license: %w", err)
	}
	return affected(res)
}

func (s *LicenseStore) Touch(ctx context.Context, id string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE licenses SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("touch license: %w", err)
	}
	return nil
}

// Consume marks an active license as used by a session start. Only one
// caller can win; the loser sees false.
func (s *LicenseStore) Consume(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET is_active = 0, consumed_at = ?, updated_at = ?
		 WHERE id = ? AND is_active = 1`,
		now, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("consume license: %w", err)
	}
	return affected(res)
}

// Deactivate clears is_active without recording consumption.
func (s *LicenseStore) Deactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET is_active = 0, updated_at = ? WHERE id = ? AND is_active = 1`,
		now, id,
	)
	if err != nil {
		return false, fmt.Errorf("deactivate license: %w", err)
	}
	return affected(res)
}

// Finalize deactivates a license whose session has ended. An existing
// consumed_at is kept.
func (s *LicenseStore) Finalize(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET is_active = 0, consumed_at = COALESCE(consumed_at, ?), updated_at = ?
		 WHERE id = ? AND is_active = 1`,
		now, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("finalize license: %w", err)
	}
	return affected(res)
}

func (s *LicenseStore) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET is_active = 0, revoked_at = ?, updated_at = ? WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("revoke license: %w", err)
	}
	return affected(res)
}

// Reactivate is an administrative override that makes a license usable again.
func (s *LicenseStore) Reactivate(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE licenses SET is_active = 1, revoked_at = NULL, activated_at = COALESCE(activated_at, ?), updated_at = ?
		 WHERE id = ?`,
		now, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("reactivate license: %w", err)
	}
	return affected(res)
}
