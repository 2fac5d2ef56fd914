package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orion-companion/orion/internal/store"
)

// SessionsEndedBefore returns the user's sessions that ended before cutoff
// and have not been summarized yet.
func (s *Store) SessionsEndedBefore(ctx context.Context, userID string, cutoff time.Time) ([]store.Session, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, user_id, started_at, ended_at, message_count, summary
		FROM sessions
		WHERE user_id = $1 AND ended_at IS NOT NULL AND ended_at < $2 AND summary IS NULL
		ORDER BY ended_at ASC`), userID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("sessions ended before: %w", err)
	}
	defer rows.Close()

	var sessions []store.Session
	for rows.Next() {
		var sess store.Session
		var endedAt time.Time
		var summary any
		if err := rows.Scan(&sess.ID, &sess.UserID, &sess.StartedAt, &endedAt, &sess.MessageCount, &summary); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.EndedAt = &endedAt
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// CompressSession atomically writes the compressed memory, stamps the
// session's summary, and deletes the session's messages. Returns the ids of
// the deleted messages so the caller can clear their vector entries
// best-effort afterwards.
func (s *Store) CompressSession(ctx context.Context, cm *store.CompressedMemory) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		s.q(`SELECT id FROM messages WHERE session_id = $1`), cm.SessionID)
	if err != nil {
		return nil, fmt.Errorf("collect message ids: %w", err)
	}
	var messageIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		messageIDs = append(messageIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if cm.ID == "" {
		cm.ID = uuid.Must(uuid.NewV7()).String()
	}
	if cm.CreatedAt.IsZero() {
		cm.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO compressed_memories
		(id, user_id, session_id, summary, original_message_count, date_range_start, date_range_end, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`),
		cm.ID, cm.UserID, cm.SessionID, cm.Summary, cm.OriginalMessageCount,
		cm.DateRangeStart, cm.DateRangeEnd, cm.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert compressed memory: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		s.q(`UPDATE sessions SET summary = $1 WHERE id = $2`), cm.Summary, cm.SessionID)
	if err != nil {
		return nil, fmt.Errorf("stamp session summary: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		s.q(`DELETE FROM messages WHERE session_id = $1`), cm.SessionID)
	if err != nil {
		return nil, fmt.Errorf("delete compressed messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit compression: %w", err)
	}
	return messageIDs, nil
}
