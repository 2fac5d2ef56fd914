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

// validTransitions is the thread state machine.
var validTransitions = map[string][]string{
	store.ThreadOpen:     {store.ThreadWaiting, store.ThreadResolved},
	store.ThreadWaiting:  {store.ThreadOpen, store.ThreadResolved},
	store.ThreadResolved: {},
}

// CreateThread opens a new thread in state "open".
func (s *Store) CreateThread(ctx context.Context, userID, trigger string, threadCtx map[string]any) (*store.Thread, error) {
	now := time.Now().UTC()
	th := &store.Thread{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		Trigger:   trigger,
		State:     store.ThreadOpen,
		CreatedAt: now,
		UpdatedAt: now,
		Context:   threadCtx,
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO threads (id, user_id, trigger_reason, state, created_at, updated_at, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		th.ID, th.UserID, th.Trigger, th.State, th.CreatedAt, th.UpdatedAt, marshalJSON(th.Context))
	if err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return th, nil
}

// GetThread fetches a thread by id. Returns (nil, nil) when absent.
func (s *Store) GetThread(ctx context.Context, id string) (*store.Thread, error) {
	return s.scanThread(s.db.QueryRowContext(ctx, s.q(`
		SELECT id, user_id, trigger_reason, state, created_at, updated_at, context
		FROM threads WHERE id = $1`), id))
}

// UpdateThreadState transitions the thread, enforcing the state machine
// atomically: the UPDATE only matches rows whose current state permits the
// transition.
func (s *Store) UpdateThreadState(ctx context.Context, id, state string) error {
	if _, known := validTransitions[state]; !known {
		return fmt.Errorf("unknown thread state %q", state)
	}

	var from []string
	for cur, nexts := range validTransitions {
		for _, n := range nexts {
			if n == state {
				from = append(from, cur)
			}
		}
	}
	if len(from) == 0 {
		return fmt.Errorf("no transition leads to state %q", state)
	}

	// from has at most two entries; expand to a fixed two-slot IN clause.
	a := from[0]
	b := from[0]
	if len(from) > 1 {
		b = from[1]
	}

	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE threads SET state = $1, updated_at = $2
		WHERE id = $3 AND state IN ($4, $5)`),
		state, time.Now().UTC(), id, a, b)
	if err != nil {
		return fmt.Errorf("update thread state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update thread state: %w", err)
	}
	if n == 0 {
		cur, getErr := s.GetThread(ctx, id)
		if getErr == nil && cur == nil {
			return fmt.Errorf("thread %s not found", id)
		}
		if getErr == nil {
			return fmt.Errorf("invalid transition %s → %s", cur.State, state)
		}
		return fmt.Errorf("invalid transition to %s", state)
	}
	return nil
}

// UpdateThreadContext replaces the thread's context map and touches
// updated_at.
func (s *Store) UpdateThreadContext(ctx context.Context, id string, threadCtx map[string]any) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE threads SET context = $1, updated_at = $2 WHERE id = $3`),
		marshalJSON(threadCtx), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update thread context: %w", err)
	}
	return nil
}

// PendingThreads returns every unresolved thread for the user, newest first.
func (s *Store) PendingThreads(ctx context.Context, userID string) ([]store.Thread, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, user_id, trigger_reason, state, created_at, updated_at, context
		FROM threads
		WHERE user_id = $1 AND state != $2
		ORDER BY created_at DESC`), userID, store.ThreadResolved)
	if err != nil {
		return nil, fmt.Errorf("pending threads: %w", err)
	}
	defer rows.Close()

	var threads []store.Thread
	for rows.Next() {
		var th store.Thread
		var threadCtx string
		if err := rows.Scan(&th.ID, &th.UserID, &th.Trigger, &th.State, &th.CreatedAt, &th.UpdatedAt, &threadCtx); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		th.Context = unmarshalJSON(threadCtx)
		threads = append(threads, th)
	}
	return threads, rows.Err()
}

func (s *Store) scanThread(row *sql.Row) (*store.Thread, error) {
	var th store.Thread
	var threadCtx string
	err := row.Scan(&th.ID, &th.UserID, &th.Trigger, &th.State, &th.CreatedAt, &th.UpdatedAt, &threadCtx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan thread: %w", err)
	}
	th.Context = unmarshalJSON(threadCtx)
	return &th, nil
}
