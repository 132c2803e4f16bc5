package tour

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/airlink/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweeperClosesExpiredSessions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	expiring := e.startSession(t, "A", 0)
	li, err := e.admission.Join(ctx, expiring.PIN, "")
	require.NoError(t, err)

	e.clock.Advance(200 * time.Minute)
	fresh := e.startSession(t, "B", 0)

	e.clock.Advance(41 * time.Minute)
	n, err := e.sweeper.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sessions := store.NewSessionStore(e.db)
	cur, _ := sessions.GetByID(ctx, expiring.ID)
	require.NotNil(t, cur.EndedAt)
	assert.Equal(t, "auto", *cur.EndReason)

	got, _ := store.NewListenerStore(e.db).GetByID(ctx, li.ID)
	assert.False(t, got.IsConnected)

	other, _ := sessions.GetByID(ctx, fresh.ID)
	assert.Nil(t, other.EndedAt)

	n, err = e.sweeper.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperClosesLazilyDeactivatedSession(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	s := e.startSession(t, "A", 0)
	li, err := e.admission.Join(ctx, s.PIN, "")
	require.NoError(t, err)

	e.clock.Advance(5 * time.Hour)
	_, err = e.admission.Join(ctx, s.PIN, "")
	require.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, e.sweeper.Run(ctx))

	cur, _ := store.NewSessionStore(e.db).GetByID(ctx, s.ID)
	require.NotNil(t, cur.EndedAt)
	got, _ := store.NewListenerStore(e.db).GetByID(ctx, li.ID)
	assert.False(t, got.IsConnected)

	require.Len(t, e.kill.calls, 1)
	assert.Equal(t, "auto", e.kill.calls[0].reason)
}
