package tour

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/airlink/internal/besteffort"
	"github.com/dukerupert/airlink/internal/database"
	"github.com/dukerupert/airlink/internal/events"
	"github.com/dukerupert/airlink/internal/killswitch"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type killCall struct {
	pin    string
	reason string
}

type recordingKill struct {
	mu    sync.Mutex
	calls []killCall
	err   error
	// db lets the kill switch observe committed state when it runs.
	db      *sql.DB
	ended   []bool
	session string
}

func (k *recordingKill) Kill(ctx context.Context, s *model.Session, reason string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, killCall{pin: s.PIN, reason: reason})
	if k.db != nil {
		cur, _ := store.NewSessionStore(k.db).GetByID(ctx, s.ID)
		k.ended = append(k.ended, cur != nil && cur.EndedAt != nil)
	}
	return k.err
}

type env struct {
	db         *sql.DB
	clock      *testClock
	outbox     *events.Outbox
	ledger     *Ledger
	registry   *Registry
	admission  *Admission
	terminator *Terminator
	sweeper    *Sweeper
	kill       *recordingKill
	licenses   *store.LicenseStore
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	return newEnvAt(t, ":memory:", opts...)
}

// newEnvAt is newEnv over the database at path. A file path gives every
// component its own connections, as in production.
func newEnvAt(t *testing.T, path string, opts ...Option) *env {
	t.Helper()
	db, err := database.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clk.Now)}, opts...)

	outbox := events.NewOutbox(db, nil, logger)
	rec := events.NewRecorder(outbox, logger)
	kill := &recordingKill{db: db}
	term := NewTerminator(db, rec, kill, besteffort.New(logger, nil), logger, opts...)

	e := &env{
		db:         db,
		clock:      clk,
		outbox:     outbox,
		ledger:     NewLedger(db, rec, logger, opts...),
		registry:   NewRegistry(db, rec, logger, opts...),
		admission:  NewAdmission(db, rec, logger, opts...),
		terminator: term,
		sweeper:    NewSweeper(db, term, logger),
		kill:       kill,
		licenses:   store.NewLicenseStore(db),
	}
	t.Cleanup(outbox.Wait)
	return e
}

func (e *env) license(t *testing.T, code string, minutes, maxListeners int) *model.License {
	t.Helper()
	l, err := e.licenses.Create(context.Background(), code, minutes, maxListeners, e.clock.Now())
	require.NoError(t, err)
	return l
}

// startSession activates a fresh license and starts a session on it.
func (e *env) startSession(t *testing.T, code string, maxListeners int) *model.Session {
	t.Helper()
	l := e.license(t, code, 240, 10)
	_, _, err := e.ledger.Activate(context.Background(), code)
	require.NoError(t, err)
	s, err := e.registry.Start(context.Background(), l.ID, maxListeners)
	require.NoError(t, err)
	return s
}

func auditTypes(t *testing.T, db *sql.DB, sessionID string) []string {
	t.Helper()
	evs, err := store.NewAuditStore(db).ListBySession(context.Background(), sessionID)
	require.NoError(t, err)
	var types []string
	for _, e := range evs {
		types = append(types, e.Type)
	}
	return types
}

var _ killswitch.KillSwitch = (*recordingKill)(nil)

type panicKill struct{}

func (panicKill) Kill(context.Context, *model.Session, string) error {
	panic("kill switch exploded")
}
