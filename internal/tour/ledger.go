package tour

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/dukerupert/airlink/internal/database"
	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
)

// Ledger owns the license lifecycle.
type Ledger struct {
	deps
}

func NewLedger(db *sql.DB, recorder *events.Recorder, logger *slog.Logger, opts ...Option) *Ledger {
	return &Ledger{deps: newDeps(db, recorder, logger, opts)}
}

// Activate redeems code. The first call activates the license and returns
// its full duration; later calls on a still-active license return the time
// left. A license that was activated and is now inactive, or revoked, is
// license_used.
func (l *Ledger) Activate(ctx context.Context, code string) (*model.License, int, error) {
	code = strings.TrimSpace(code)
	now := l.now()

	var lic *model.License
	err := database.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		licenses := store.NewLicenseStore(tx)
		cur, err := licenses.GetByCode(ctx, code)
		if err != nil {
			return dbError(err)
		}
		if cur == nil {
			return ErrLicenseNotFound
		}

		switch {
		case cur.Used():
			return ErrLicenseUsed
		case !cur.IsActive:
			ok, err := licenses.Activate(ctx, cur.ID, now)
			if err != nil {
				return dbError(err)
			}
			if !ok {
				return ErrLicenseUsed
			}
			l.recorder.Record(ctx, tx, events.Record{
				Type:        "license_activated",
				Description: "code=" + cur.Code,
				LicenseCode: strPtr(cur.Code),
			}, now)
		default:
			if err := licenses.Touch(ctx, cur.ID, now); err != nil {
				return dbError(err)
			}
		}

		lic, err = licenses.GetByID(ctx, cur.ID)
		if err != nil {
			return dbError(err)
		}
		return nil
	})
	if err != nil {
		return nil, 0, domainError(err)
	}

	l.logger.Info("license activated", "code", lic.Code, "remaining_minutes", lic.RemainingMinutes(now))
	return lic, lic.RemainingMinutes(now), nil
}

// Revoke is an administrative override that deactivates a license and marks
// it revoked.
func (l *Ledger) Revoke(ctx context.Context, id string) (*model.License, error) {
	return l.override(ctx, id, "license_revoked", func(s *store.LicenseStore) (bool, error) {
		return s.Revoke(ctx, id, l.now())
	})
}

// Reactivate is an administrative override that clears a revocation and
// makes the license active again.
func (l *Ledger) Reactivate(ctx context.Context, id string) (*model.License, error) {
	return l.override(ctx, id, "license_reactivated", func(s *store.LicenseStore) (bool, error) {
		return s.Reactivate(ctx, id, l.now())
	})
}

func (l *Ledger) override(ctx context.Context, id, eventType string, apply func(*store.LicenseStore) (bool, error)) (*model.License, error) {
	var lic *model.License
	err := database.WithTx(ctx, l.db, func(tx *sql.Tx) error {
		licenses := store.NewLicenseStore(tx)
		ok, err := apply(licenses)
		if err != nil {
			return dbError(err)
		}
		if !ok {
			return ErrLicenseNotFound
		}
		lic, err = licenses.GetByID(ctx, id)
		if err != nil {
			return dbError(err)
		}
		l.recorder.Record(ctx, tx, events.Record{
			Type:        eventType,
			Description: "code=" + lic.Code,
			LicenseCode: strPtr(lic.Code),
		}, l.now())
		return nil
	})
	if err != nil {
		return nil, domainError(err)
	}
	l.logger.Info(strings.ReplaceAll(eventType, "_", " "), "code", lic.Code)
	return lic, nil
}

// Get returns the license with id, or license_not_found.
func (l *Ledger) Get(ctx context.Context, id string) (*model.License, error) {
	lic, err := store.NewLicenseStore(l.db).GetByID(ctx, id)
	if err != nil {
		return nil, dbError(err)
	}
	if lic == nil {
		return nil, ErrLicenseNotFound
	}
	return lic, nil
}
