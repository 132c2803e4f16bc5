package tour

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/airlink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndClosesSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.startSession(t, "A", 0)
	a, err := e.admission.Join(ctx, s.PIN, "")
	require.NoError(t, err)
	b, err := e.admission.Join(ctx, s.PIN, "")
	require.NoError(t, err)

	e.clock.Advance(90 * time.Second)
	ok, err := e.terminator.End(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	sessions := store.NewSessionStore(e.db)
	cur, err := sessions.GetByID(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, cur.EndedAt)
	assert.True(t, cur.EndedAt.Equal(e.clock.Now()))
	assert.False(t, cur.IsActive)
	require.NotNil(t, cur.EndReason)
	assert.Equal(t, "manual", *cur.EndReason)

	listeners := store.NewListenerStore(e.db)
	for _, id := range []string{a.ID, b.ID} {
		li, err := listeners.GetByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, li.IsConnected)
	}

	lic, err := e.licenses.GetByID(ctx, s.LicenseID)
	require.NoError(t, err)
	assert.False(t, lic.IsActive)
	assert.NotNil(t, lic.ConsumedAt)
}

func TestEndTwiceKeepsFirstEndedAt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.startSession(t, "A", 0)

	ok, err := e.terminator.End(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	first, _ := store.NewSessionStore(e.db).GetByID(ctx, s.ID)

	e.clock.Advance(time.Minute)
	ok, err = e.terminator.End(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	second, _ := store.NewSessionStore(e.db).GetByID(ctx, s.ID)

	assert.True(t, first.EndedAt.Equal(*second.EndedAt))

	ended := 0
	for _, typ := range auditTypes(t, e.db, s.ID) {
		if typ == "session_ended" {
			ended++
		}
	}
	assert.Equal(t, 1, ended)
}

func TestEndUnknownSession(t *testing.T) {
	e := newEnv(t)
	ok, err := e.terminator.End(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, e.kill.calls)
}

func TestTerminateEventOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.startSession(t, "A", 0)
	_, err := e.admission.Join(ctx, s.PIN, "")
	require.NoError(t, err)

	_, outcome, err := e.terminator.Terminate(ctx, s.ID, ReasonManual)
	require.NoError(t, err)
	assert.Equal(t, OutcomeClosed, outcome)

	types := auditTypes(t, e.db, s.ID)
	idx := func(typ string) int {
		for i, v := range types {
			if v == typ {
				return i
			}
		}
		return -1
	}
	require.NotEqual(t, -1, idx("listener_left"))
	assert.Less(t, idx("listener_left"), idx("session_ended"))
	assert.Less(t, idx("session_ended"), idx("KILL_SWITCH_START"))
	assert.Less(t, idx("KILL_SWITCH_START"), idx("KILL_SWITCH_SUCCESS"))

	evs, err := store.NewAuditStore(e.db).ListBySession(ctx, s.ID)
	require.NoError(t, err)
	for _, ev := range evs {
		if ev.Type == "listener_left" {
			assert.True(t, strings.HasSuffix(ev.Description, ";reason=session_manual"), ev.Description)
		}
	}
}

func TestKillSwitchRunsAfterCommit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.startSession(t, "A", 0)

	_, err := e.terminator.End(ctx, s.ID)
	require.NoError(t, err)

	require.Len(t, e.kill.calls, 1)
	assert.Equal(t, killCall{pin: s.PIN, reason: "manual"}, e.kill.calls[0])
	assert.Equal(t, []bool{true}, e.kill.ended)
}

func TestLateSyncDisconnectsStragglers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.startSession(t, "A", 0)

	_, err := e.terminator.End(ctx, s.ID)
	require.NoError(t, err)

	// A listener row left connected by an out-of-band writer.
	stray, err := store.NewListenerStore(e.db).Admit(ctx, s.ID, nil, e.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, stray)

	sess, outcome, err := e.terminator.Terminate(ctx, s.ID, ReasonAuto)
	require.NoError(t, err)
	assert.Equal(t, OutcomeLateSync, outcome)
	require.NotNil(t, sess.EndReason)
	assert.Equal(t, "manual", *sess.EndReason)

	li, _ := store.NewListenerStore(e.db).GetByID(ctx, stray.ID)
	assert.False(t, li.IsConnected)

	require.Len(t, e.kill.calls, 2)
	assert.Equal(t, "auto_late_sync", e.kill.calls[1].reason)

	evs, err := store.NewAuditStore(e.db).ListByType(ctx, "listener_left", 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Contains(t, evs[0].Description, "(late sync)")
}

func TestKillSwitchFailureKeepsSessionEnded(t *testing.T) {
	e := newEnv(t)
	e.kill.err = errors.New("rtc unavailable")
	ctx := context.Background()
	s := e.startSession(t, "A", 0)

	ok, err := e.terminator.End(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	cur, _ := store.NewSessionStore(e.db).GetByID(ctx, s.ID)
	assert.NotNil(t, cur.EndedAt)

	evs, err := store.NewAuditStore(e.db).ListByType(ctx, "KILL_SWITCH_FAIL", 10)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Contains(t, evs[0].Description, "rtc unavailable")
}

func TestKillSwitchPanicIsContained(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.startSession(t, "A", 0)

	term := NewTerminator(e.db, nil, panicKill{}, nil, e.terminator.logger, WithClock(e.clock.Now))
	ok, err := term.End(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConcurrentTerminateOnFileDB(t *testing.T) {
	e := newEnvAt(t, filepath.Join(t.TempDir(), "airlink.db"))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 20; i++ {
		s := e.startSession(t, fmt.Sprintf("RACE-%02d", i), 0)
		_, err := e.admission.Join(ctx, s.PIN, "")
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}

	var mu sync.Mutex
	closed := map[string]int{}
	var errs []error
	var wg sync.WaitGroup
	for _, id := range ids {
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, outcome, err := e.terminator.Terminate(ctx, id, ReasonManual)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if outcome == OutcomeClosed {
					closed[id]++
				}
			}()
		}
	}
	wg.Wait()

	require.Empty(t, errs)
	for _, id := range ids {
		assert.Equal(t, 1, closed[id], "session %s closed count", id)
		ended := 0
		for _, typ := range auditTypes(t, e.db, id) {
			if typ == "session_ended" {
				ended++
			}
		}
		assert.Equal(t, 1, ended, "session %s session_ended events", id)
	}
}
