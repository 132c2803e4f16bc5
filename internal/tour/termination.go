package tour

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/airlink/internal/besteffort"
	"github.com/dukerupert/airlink/internal/database"
	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/killswitch"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
)

// Reason is why a session is being terminated.
type Reason string

const (
	ReasonManual Reason = "manual"
	ReasonAuto   Reason = "auto"
)

// Outcome reports which path Terminate took.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeClosed
	OutcomeLateSync
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClosed:
		return "closed"
	case OutcomeLateSync:
		return "late_sync"
	default:
		return "not_found"
	}
}

const lateSyncSuffix = "_late_sync"

const killSwitchTimeout = 30 * time.Second

// Terminator ends sessions. It is safe to call repeatedly on the same session.
type Terminator struct {
	deps
	kill killswitch.KillSwitch
	exec *besteffort.Executor
}

func NewTerminator(db *sql.DB, recorder *events.Recorder, ks killswitch.KillSwitch, exec *besteffort.Executor, logger *slog.Logger, opts ...Option) *Terminator {
	if ks == nil {
		ks = killswitch.Chain{}
	}
	return &Terminator{
		deps: newDeps(db, recorder, logger, opts),
		kill: ks,
		exec: exec,
	}
}

// End is the manual trigger. It reports false only when the session does
// not exist; ending an already ended session reports true.
func (t *Terminator) End(ctx context.Context, sessionID string) (bool, error) {
	_, outcome, err := t.Terminate(ctx, sessionID, ReasonManual)
	if err != nil {
		return false, err
	}
	return outcome != OutcomeNotFound, nil
}

// Terminate closes the session in one transaction: mark it ended,
// disconnect every connected listener, emit listener_left events then
// session_ended, and finalize the license. After commit the kill switch runs
// best effort. On an already ended session only stray connected listeners
// are disconnected, tagged "(late sync)", and the kill switch runs with a
// _late_sync reason.
func (t *Terminator) Terminate(ctx context.Context, sessionID string, reason Reason) (*model.Session, Outcome, error) {
	now := t.now()

	var sess *model.Session
	var outboxIDs []string
	outcome := OutcomeNotFound
	err := database.WithTx(ctx, t.db, func(tx *sql.Tx) error {
		sessions := store.NewSessionStore(tx)
		cur, err := sessions.GetByID(ctx, sessionID)
		if err != nil {
			return dbError(err)
		}
		if cur == nil {
			return nil
		}

		listeners := store.NewListenerStore(tx)
		connected, err := listeners.ListConnected(ctx, cur.ID)
		if err != nil {
			return dbError(err)
		}

		ended := false
		if cur.EndedAt == nil {
			ended, err = sessions.End(ctx, cur.ID, now, string(reason))
			if err != nil {
				return dbError(err)
			}
		}
		if !ended {
			outcome = OutcomeLateSync
			for _, li := range connected {
				ok, err := listeners.Disconnect(ctx, li.ID, now)
				if err != nil {
					return dbError(err)
				}
				if ok {
					t.recorder.Record(ctx, tx, events.Record{
						Type:        "listener_left",
						Description: "listener_id=" + li.ID + " (late sync)",
						SessionID:   strPtr(cur.ID),
					}, now)
				}
			}
			sess, err = sessions.GetByID(ctx, cur.ID)
			if err != nil {
				return dbError(err)
			}
			return nil
		}

		outcome = OutcomeClosed
		for _, li := range connected {
			ok, err := listeners.Disconnect(ctx, li.ID, now)
			if err != nil {
				return dbError(err)
			}
			if ok {
				t.recorder.Record(ctx, tx, events.Record{
					Type:        "listener_left",
					Description: fmt.Sprintf("listener_id=%s;reason=session_%s", li.ID, reason),
					SessionID:   strPtr(cur.ID),
				}, now)
			}
		}

		seconds := int(now.Sub(cur.StartedAt) / time.Second)
		if seconds < 0 {
			seconds = 0
		}
		outboxIDs = append(outboxIDs, t.recorder.Record(ctx, tx, events.Record{
			Type:        events.TypeSessionEnded,
			Description: "reason=" + string(reason),
			SessionID:   strPtr(cur.ID),
			Payload: map[string]any{
				"session_id":       cur.ID,
				"duration_seconds": seconds,
				"reason":           string(reason),
			},
		}, now))

		if _, err := store.NewLicenseStore(tx).Finalize(ctx, cur.LicenseID, now); err != nil {
			return dbError(err)
		}

		sess, err = sessions.GetByID(ctx, cur.ID)
		if err != nil {
			return dbError(err)
		}
		return nil
	})
	if err != nil {
		return nil, OutcomeNotFound, domainError(err)
	}
	if outcome == OutcomeNotFound {
		return nil, OutcomeNotFound, nil
	}

	t.recorder.Schedule(outboxIDs...)

	killReason := string(reason)
	if outcome == OutcomeClosed {
		t.metrics.ObserveSessionClosed(string(reason))
		t.logger.Info("session ended", "session_id", sess.ID, "reason", reason)
		t.notifier.Notify(ctx, "Session Ended", map[string]any{
			"session_id": sess.ID,
			"pin":        sess.PIN,
			"reason":     string(reason),
		})
	} else {
		killReason += lateSyncSuffix
	}
	t.runKillSwitch(ctx, sess, killReason)

	return sess, outcome, nil
}

// runKillSwitch invokes the kill switch outside any transaction and records
// its progress. It never fails the caller.
func (t *Terminator) runKillSwitch(ctx context.Context, sess *model.Session, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), killSwitchTimeout)
	defer cancel()

	record := func(eventType, description string) {
		t.recorder.Record(ctx, t.db, events.Record{
			Type:        eventType,
			Description: description,
			SessionID:   strPtr(sess.ID),
		}, t.now())
	}

	record("KILL_SWITCH_START", "pin="+sess.PIN+";reason="+reason)
	res := t.exec.Do(ctx, "kill_switch", func(ctx context.Context) error {
		return t.kill.Kill(ctx, sess, reason)
	})
	if res.OK() {
		record("KILL_SWITCH_SUCCESS", "reason="+reason)
		return
	}
	record("KILL_SWITCH_FAIL", "reason="+reason+";error="+res.Err.Error())
	t.notifier.Notify(ctx, "Kill Switch Failed", map[string]any{
		"session_id": sess.ID,
		"reason":     reason,
		"error":      res.Err.Error(),
	})
}
