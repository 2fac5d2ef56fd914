package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orion-companion/orion/internal/store"
)

// AppendTriggerLog records one trigger firing. Append-only.
func (s *Store) AppendTriggerLog(ctx context.Context, entry *store.TriggerLog) error {
	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO trigger_logs (id, user_id, trigger_type, reason, urgency, acted_on, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		entry.ID, entry.UserID, entry.TriggerType, entry.Reason, entry.Urgency, entry.ActedOn, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append trigger log: %w", err)
	}
	return nil
}
