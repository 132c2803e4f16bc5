package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/airlink/internal/model"
	"github.com/google/uuid"
)

type ListenerStore struct {
	db Querier
}

func NewListenerStore(db Querier) *ListenerStore {
	return &ListenerStore{db: db}
}

func scanListener(scanner interface{ Scan(...any) error }) (*model.Listener, error) {
	var l model.Listener
	var connected int
	var displayName sql.NullString
	var leftAt sql.NullTime
	err := scanner.Scan(&l.ID, &l.SessionID, &displayName, &l.JoinedAt, &leftAt, &connected)
	if err != nil {
		return nil, err
	}
	l.IsConnected = connected != 0
	l.JoinedAt = l.JoinedAt.UTC()
	if displayName.Valid {
		l.DisplayName = &displayName.String
	}
	if leftAt.Valid {
		t := leftAt.Time.UTC()
		l.LeftAt = &t
	}
	return &l, nil
}

const listenerCols = `id, session_id, display_name, joined_at, left_at, is_connected`

// Admit inserts a connected listener only while the session's connected
// count is below its max_listeners. The check and insert are one statement,
// so concurrent admissions cannot overshoot the cap. It returns (nil, nil)
// when the session is full.
func (s *ListenerStore) Admit(ctx context.Context, sessionID string, displayName *string, now time.Time) (*model.Listener, error) {
	id := uuid.NewString()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO listeners (id, session_id, display_name, joined_at, is_connected)
		 SELECT ?, s.id, ?, ?, 1 FROM sessions s
		 WHERE s.id = ?
		   AND (SELECT COUNT(*) FROM listeners l WHERE l.session_id = s.id AND l.is_connected = 1) < s.max_listeners`,
		id, nullString(displayName), now, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("admit listener: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return nil, fmt.Errorf("admit listener: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return s.GetByID(ctx, id)
}

func (s *ListenerStore) GetByID(ctx context.Context, id string) (*model.Listener, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+listenerCols+` FROM listeners WHERE id = ?`, id)
	l, err := scanListener(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listener: %w", err)
	}
	return l, nil
}

func (s *ListenerStore) CountConnected(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM listeners WHERE session_id = ? AND is_connected = 1`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count listeners: %w", err)
	}
	return n, nil
}

func (s *ListenerStore) ListConnected(ctx context.Context, sessionID string) ([]model.Listener, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listenerCols+` FROM listeners WHERE session_id = ? AND is_connected = 1 ORDER BY joined_at, rowid`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list listeners: %w", err)
	}
	defer rows.Close()

	var listeners []model.Listener
	for rows.Next() {
		l, err := scanListener(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listener: %w", err)
		}
		listeners = append(listeners, *l)
	}
	return listeners, rows.Err()
}

// Disconnect marks a listener as gone. It reports false when the listener
// was already disconnected.
func (s *ListenerStore) Disconnect(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listeners SET is_connected = 0, left_at = ? WHERE id = ? AND is_connected = 1`,
		now, id,
	)
	if err != nil {
		return false, fmt.Errorf("disconnect listener: %w", err)
	}
	return affected(res)
}
