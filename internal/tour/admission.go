package tour

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/dukerupert/airlink/internal/database"
	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/pin"
	"github.com/dukerupert/airlink/internal/store"
)

// LeaveStatus reports what Leave did.
type LeaveStatus string

const (
	LeaveDisconnected        LeaveStatus = "disconnected"
	LeaveAlreadyDisconnected LeaveStatus = "already_disconnected"
)

// Admission admits listeners into sessions by PIN.
type Admission struct {
	deps
}

func NewAdmission(db *sql.DB, recorder *events.Recorder, logger *slog.Logger, opts ...Option) *Admission {
	return &Admission{deps: newDeps(db, recorder, logger, opts)}
}

// Join admits a listener into the active session for code. An expired
// session is marked inactive and reported as session_expired; a session at
// capacity is session_full and nothing is written.
func (a *Admission) Join(ctx context.Context, code, displayName string) (*model.Listener, error) {
	li, err := a.join(ctx, code, displayName)
	if err != nil {
		a.metrics.ObserveJoinRejected(string(KindOf(err)))
		return nil, err
	}
	return li, nil
}

func (a *Admission) join(ctx context.Context, code, displayName string) (*model.Listener, error) {
	code = pin.Normalize(code)
	if !pin.Valid(code) {
		return nil, ErrSessionNotFound
	}
	now := a.now()

	var name *string
	if n := strings.TrimSpace(displayName); n != "" {
		name = &n
	}

	var li *model.Listener
	var outboxID string
	expired := false
	err := database.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		sessions := store.NewSessionStore(tx)
		sess, err := sessions.GetActiveByPIN(ctx, code)
		if err != nil {
			return dbError(err)
		}
		if sess == nil {
			return ErrSessionNotFound
		}
		if sess.Expired(now) {
			if _, err := sessions.MarkInactive(ctx, sess.ID); err != nil {
				return dbError(err)
			}
			expired = true
			return nil
		}

		li, err = store.NewListenerStore(tx).Admit(ctx, sess.ID, name, now)
		if err != nil {
			return dbError(err)
		}
		if li == nil {
			return ErrSessionFull
		}

		outboxID = a.recorder.Record(ctx, tx, events.Record{
			Type:        events.TypeListenerJoined,
			Description: "listener_id=" + li.ID,
			SessionID:   strPtr(sess.ID),
			Payload: map[string]any{
				"session_id":  sess.ID,
				"listener_id": li.ID,
			},
		}, now)
		return nil
	})
	if err != nil {
		return nil, domainError(err)
	}
	if expired {
		return nil, ErrSessionExpired
	}

	a.recorder.Schedule(outboxID)
	a.logger.Info("listener joined", "listener_id", li.ID, "session_id", li.SessionID)
	a.notifier.Notify(ctx, "Listener Joined", map[string]any{
		"session_id":   li.SessionID,
		"listener_id":  li.ID,
		"display_name": li.DisplayName,
	})
	return li, nil
}

// Leave disconnects a listener. Leaving twice is safe and reports
// LeaveAlreadyDisconnected without writing anything.
func (a *Admission) Leave(ctx context.Context, listenerID string) (LeaveStatus, error) {
	now := a.now()
	status := LeaveAlreadyDisconnected
	err := database.WithTx(ctx, a.db, func(tx *sql.Tx) error {
		listeners := store.NewListenerStore(tx)
		li, err := listeners.GetByID(ctx, listenerID)
		if err != nil {
			return dbError(err)
		}
		if li == nil {
			return ErrListenerNotFound
		}
		if !li.IsConnected {
			return nil
		}
		ok, err := listeners.Disconnect(ctx, li.ID, now)
		if err != nil {
			return dbError(err)
		}
		if !ok {
			return nil
		}
		status = LeaveDisconnected
		a.recorder.Record(ctx, tx, events.Record{
			Type:        "listener_left",
			Description: "listener_id=" + li.ID + ";reason=left",
			SessionID:   strPtr(li.SessionID),
		}, now)
		return nil
	})
	if err != nil {
		return "", domainError(err)
	}
	return status, nil
}

// Verify checks that listenerID is connected to the active session for code.
func (a *Admission) Verify(ctx context.Context, code, listenerID string) error {
	sess, err := store.NewSessionStore(a.db).GetActiveByPIN(ctx, pin.Normalize(code))
	if err != nil {
		return dbError(err)
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	li, err := store.NewListenerStore(a.db).GetByID(ctx, listenerID)
	if err != nil {
		return dbError(err)
	}
	if li == nil || !li.IsConnected || li.SessionID != sess.ID {
		return ErrListenerNotFound
	}
	return nil
}

// Release disconnects a listener whose live connection dropped.
func (a *Admission) Release(ctx context.Context, listenerID string) error {
	_, err := a.Leave(ctx, listenerID)
	return err
}
