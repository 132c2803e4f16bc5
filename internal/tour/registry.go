package tour

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/dukerupert/airlink/internal/database"
	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
)

// PINAttempts bounds how many candidates Start tries before giving up.
const PINAttempts = 6

// Registry starts sessions from active licenses.
type Registry struct {
	deps
}

func NewRegistry(db *sql.DB, recorder *events.Recorder, logger *slog.Logger, opts ...Option) *Registry {
	return &Registry{deps: newDeps(db, recorder, logger, opts)}
}

// Start opens a session for the license. maxListeners of 0 uses the
// license's default capacity. Session creation, license consumption and the
// session_started event commit together.
func (r *Registry) Start(ctx context.Context, licenseID string, maxListeners int) (*model.Session, error) {
	now := r.now()

	var sess *model.Session
	var outboxID string
	expired := false
	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		licenses := store.NewLicenseStore(tx)
		lic, err := licenses.GetByID(ctx, licenseID)
		if err != nil {
			return dbError(err)
		}
		if lic == nil {
			return ErrLicenseNotFound
		}
		if !lic.IsActive || lic.ActivatedAt == nil {
			return ErrLicenseNotActive
		}

		duration := time.Duration(lic.DurationMinutes) * time.Minute
		elapsed := lic.Elapsed(now)
		if elapsed >= duration {
			if _, err := licenses.Deactivate(ctx, lic.ID, now); err != nil {
				return dbError(err)
			}
			expired = true
			return nil
		}

		if maxListeners == 0 {
			maxListeners = lic.MaxListeners
		}
		if !model.IsAllowedMaxListeners(maxListeners) {
			return ErrInvalidMaxListeners
		}

		sessions := store.NewSessionStore(tx)
		code, err := r.allocatePIN(ctx, sessions)
		if err != nil {
			return err
		}

		sess, err = sessions.Create(ctx, lic.ID, code, now, now.Add(duration-elapsed), maxListeners)
		if err != nil {
			return dbError(err)
		}

		ok, err := licenses.Consume(ctx, lic.ID, now)
		if err != nil {
			return dbError(err)
		}
		if !ok {
			return ErrLicenseNotActive
		}

		outboxID = r.recorder.Record(ctx, tx, events.Record{
			Type:        events.TypeSessionStarted,
			Description: "pin=" + sess.PIN,
			SessionID:   strPtr(sess.ID),
			LicenseCode: strPtr(lic.Code),
			Payload: map[string]any{
				"session_id": sess.ID,
				"pin":        sess.PIN,
			},
		}, now)
		return nil
	})
	if err != nil {
		return nil, domainError(err)
	}
	if expired {
		return nil, ErrLicenseExpired
	}

	r.recorder.Schedule(outboxID)
	r.logger.Info("session started", "session_id", sess.ID, "pin", sess.PIN, "max_listeners", sess.MaxListeners, "expires_at", sess.ExpiresAt)
	r.notifier.Notify(ctx, "Session Started", map[string]any{
		"session_id":    sess.ID,
		"pin":           sess.PIN,
		"max_listeners": sess.MaxListeners,
		"expires_at":    sess.ExpiresAt,
	})
	return sess, nil
}

func (r *Registry) allocatePIN(ctx context.Context, sessions *store.SessionStore) (string, error) {
	for i := 0; i < PINAttempts; i++ {
		candidate, err := r.genPIN()
		if err != nil {
			return "", &Error{Kind: KindPINGenerationFailed, Err: err}
		}
		inUse, err := sessions.PINInUse(ctx, candidate)
		if err != nil {
			return "", dbError(err)
		}
		if !inUse {
			return candidate, nil
		}
	}
	return "", ErrPINGenerationFailed
}

// SessionView is a session with its live listener count.
type SessionView struct {
	*model.Session
	ConnectedListeners int `json:"connected_listeners"`
}

// Get returns a session and its connected listener count.
func (r *Registry) Get(ctx context.Context, id string) (*SessionView, error) {
	sess, err := store.NewSessionStore(r.db).GetByID(ctx, id)
	if err != nil {
		return nil, dbError(err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	n, err := store.NewListenerStore(r.db).CountConnected(ctx, id)
	if err != nil {
		return nil, dbError(err)
	}
	return &SessionView{Session: sess, ConnectedListeners: n}, nil
}
