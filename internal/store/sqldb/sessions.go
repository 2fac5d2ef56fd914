package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orion-companion/orion/internal/store"
)

// ActiveSession returns the newest open session for the user, or (nil, nil).
func (s *Store) ActiveSession(ctx context.Context, userID string) (*store.Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, s.q(`
		SELECT id, user_id, started_at, ended_at, message_count, summary
		FROM sessions
		WHERE user_id = $1 AND ended_at IS NULL
		ORDER BY started_at DESC
		LIMIT 1`), userID))
}

// CreateSession opens a new session for the user.
func (s *Store) CreateSession(ctx context.Context, userID string) (*store.Session, error) {
	sess := &store.Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO sessions (id, user_id, started_at, message_count)
		VALUES ($1, $2, $3, 0)`),
		sess.ID, sess.UserID, sess.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// EndSession stamps ended_at on the session.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE sessions SET ended_at = $1 WHERE id = $2 AND ended_at IS NULL`),
		time.Now().UTC(), sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// GetSession fetches a session by id. Returns (nil, nil) when absent.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*store.Session, error) {
	return s.scanSession(s.db.QueryRowContext(ctx, s.q(`
		SELECT id, user_id, started_at, ended_at, message_count, summary
		FROM sessions WHERE id = $1`), sessionID))
}

func (s *Store) scanSession(row *sql.Row) (*store.Session, error) {
	var sess store.Session
	var endedAt sql.NullTime
	var summary sql.NullString
	err := row.Scan(&sess.ID, &sess.UserID, &sess.StartedAt, &endedAt, &sess.MessageCount, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		sess.EndedAt = &t
	}
	if summary.Valid {
		v := summary.String
		sess.Summary = &v
	}
	return &sess, nil
}
