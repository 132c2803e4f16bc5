package tour

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/dukerupert/airlink/internal/clock"
	"github.com/dukerupert/airlink/internal/store"
)

// Sweeper closes sessions that have passed their expiry.
type Sweeper struct {
	db         *sql.DB
	terminator *Terminator
	logger     *slog.Logger
	now        clock.Func
}

func NewSweeper(db *sql.DB, terminator *Terminator, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		db:         db,
		terminator: terminator,
		logger:     logger,
		now:        terminator.now,
	}
}

// Tick terminates every expired, not yet ended session with reason auto.
// Each session commits on its own; a failure is logged and the rest proceed.
func (s *Sweeper) Tick(ctx context.Context) (int, error) {
	expired, err := store.NewSessionStore(s.db).ListExpired(ctx, s.now())
	if err != nil {
		return 0, dbError(err)
	}

	closed := 0
	for _, sess := range expired {
		_, outcome, err := s.terminator.Terminate(ctx, sess.ID, ReasonAuto)
		if err != nil {
			s.logger.Error("close expired session", "session_id", sess.ID, "error", err)
			continue
		}
		if outcome == OutcomeClosed {
			closed++
		}
	}
	if closed > 0 {
		s.logger.Info("expired sessions closed", "count", closed)
	}
	return closed, nil
}

// Run adapts Tick to a scheduler job.
func (s *Sweeper) Run(ctx context.Context) error {
	_, err := s.Tick(ctx)
	return err
}
