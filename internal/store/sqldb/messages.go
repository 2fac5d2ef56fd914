package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/orion-companion/orion/internal/store"
)

// InsertMessage writes the message and bumps the owning session's counter in
// the same transaction.
func (s *Store) InsertMessage(ctx context.Context, msg *store.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var sessionID any
	if msg.SessionID != nil {
		sessionID = *msg.SessionID
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO messages (id, user_id, session_id, role, content, timestamp, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		msg.ID, msg.UserID, sessionID, msg.Role, msg.Content, msg.Timestamp, marshalJSON(msg.Metadata))
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if msg.SessionID != nil {
		_, err = tx.ExecContext(ctx,
			s.q(`UPDATE sessions SET message_count = message_count + 1 WHERE id = $1`),
			*msg.SessionID)
		if err != nil {
			return fmt.Errorf("bump message_count: %w", err)
		}
	}

	return tx.Commit()
}

// RecentMessages returns at most limit newest messages for the user in
// ascending time order.
func (s *Store) RecentMessages(ctx context.Context, userID string, limit int) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, user_id, session_id, role, content, timestamp, metadata
		FROM messages
		WHERE user_id = $1
		ORDER BY timestamp DESC
		LIMIT $2`), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Query is newest-first; callers get ascending time.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// SessionMessages returns every message of a session in ascending time order.
func (s *Store) SessionMessages(ctx context.Context, sessionID string) ([]store.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, user_id, session_id, role, content, timestamp, metadata
		FROM messages
		WHERE session_id = $1
		ORDER BY timestamp ASC`), sessionID)
	if err != nil {
		return nil, fmt.Errorf("session messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]store.Message, error) {
	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var sessionID sql.NullString
		var metadata string
		if err := rows.Scan(&m.ID, &m.UserID, &sessionID, &m.Role, &m.Content, &m.Timestamp, &metadata); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if sessionID.Valid {
			v := sessionID.String
			m.SessionID = &v
		}
		m.Metadata = unmarshalJSON(metadata)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
