// Package memory is the facade over the relational store and the vector
// store: message write-through, history, semantic recall, and session
// compression.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orion-companion/orion/internal/store"
	"github.com/orion-companion/orion/internal/vector"
)

// Summarizer condenses a session transcript into a few sentences.
// Compression receives it as a capability so this package never depends on
// the model orchestration layer.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

// RecalledMessage is a semantic-recall hit projected into message shape.
type RecalledMessage struct {
	ID        string            `json:"id"`
	Score     float32           `json:"score"`
	Role      string            `json:"role"`
	Content   string            `json:"content"`
	Timestamp string            `json:"timestamp"`
	Metadata  map[string]string `json:"metadata"`
}

// Memory coordinates the relational store (authoritative) and the vector
// store (best-effort, rebuildable).
type Memory struct {
	store   store.Store
	vectors vector.Store
}

// New creates the facade.
func New(st store.Store, vec vector.Store) *Memory {
	return &Memory{store: st, vectors: vec}
}

// SaveMessage persists a message under the user's active session and
// mirrors it into the vector store. The vector upsert is best-effort: a
// failure there is logged and the relational write stands.
func (m *Memory) SaveMessage(ctx context.Context, userID, role, content string, metadata map[string]any) (*store.Message, error) {
	user, err := m.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	session, err := m.store.ActiveSession(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if session == nil {
		session, err = m.store.CreateSession(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
	}

	msg := &store.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    user.ID,
		SessionID: &session.ID,
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	vecMeta := map[string]any{
		"user_id":   user.ID,
		"role":      role,
		"timestamp": msg.Timestamp.UTC().Format(time.RFC3339),
	}
	for k, v := range metadata {
		if _, taken := vecMeta[k]; !taken {
			vecMeta[k] = v
		}
	}
	if err := m.vectors.Upsert(ctx, msg.ID, content, vecMeta); err != nil {
		slog.Warn("vector upsert failed, relational write stands", "message_id", msg.ID, "error", err)
	}

	return msg, nil
}

// GetHistory returns at most limit recent messages in ascending-time order.
func (m *Memory) GetHistory(ctx context.Context, userID string, limit int) ([]store.Message, error) {
	user, err := m.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.store.RecentMessages(ctx, user.ID, limit)
}

// GetRelevantContext performs semantic recall scoped to the user.
func (m *Memory) GetRelevantContext(ctx context.Context, userID, query string, topK int) ([]RecalledMessage, error) {
	user, err := m.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	hits, err := m.vectors.Search(ctx, query, topK, map[string]string{"user_id": user.ID})
	if err != nil {
		return nil, fmt.Errorf("semantic recall: %w", err)
	}

	recalled := make([]RecalledMessage, 0, len(hits))
	for _, hit := range hits {
		recalled = append(recalled, RecalledMessage{
			ID:        hit.ID,
			Score:     hit.Score,
			Role:      hit.Metadata["role"],
			Content:   hit.Metadata["text"],
			Timestamp: hit.Metadata["timestamp"],
			Metadata:  hit.Metadata,
		})
	}
	return recalled, nil
}

// EndSession closes the user's active session, if any.
func (m *Memory) EndSession(ctx context.Context, userID string) error {
	user, err := m.resolveUser(ctx, userID)
	if err != nil {
		return err
	}
	session, err := m.store.ActiveSession(ctx, user.ID)
	if err != nil || session == nil {
		return err
	}
	return m.store.EndSession(ctx, session.ID)
}

const autoSummaryLimit = 1000

// CompressOldSessions summarizes and compacts every session of the user
// that ended before the cutoff and has no summary yet. Returns the number
// of sessions compressed. The relational change is transactional; the
// vector delete that follows it is best-effort.
func (m *Memory) CompressOldSessions(ctx context.Context, userID string, olderThanDays int, summarizer Summarizer) (int, error) {
	user, err := m.resolveUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	sessions, err := m.store.SessionsEndedBefore(ctx, user.ID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list compressible sessions: %w", err)
	}

	compressed := 0
	for _, session := range sessions {
		msgs, err := m.store.SessionMessages(ctx, session.ID)
		if err != nil {
			slog.Warn("compression skipped session", "session_id", session.ID, "error", err)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		transcript := buildTranscript(msgs)
		summary := summarize(ctx, summarizer, transcript)

		cm := &store.CompressedMemory{
			UserID:               user.ID,
			SessionID:            session.ID,
			Summary:              summary,
			OriginalMessageCount: len(msgs),
			DateRangeStart:       msgs[0].Timestamp,
			DateRangeEnd:         msgs[len(msgs)-1].Timestamp,
		}
		deletedIDs, err := m.store.CompressSession(ctx, cm)
		if err != nil {
			slog.Warn("compression failed", "session_id", session.ID, "error", err)
			continue
		}

		if err := m.vectors.Delete(ctx, deletedIDs); err != nil {
			slog.Warn("vector cleanup failed, relational change stands", "session_id", session.ID, "error", err)
		}

		slog.Info("session compressed", "session_id", session.ID, "messages", len(msgs))
		compressed++
	}
	return compressed, nil
}

// resolveUser looks the user up by name, creating them on first contact.
func (m *Memory) resolveUser(ctx context.Context, userID string) (*store.User, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user, err = m.store.GetUserByName(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user by name: %w", err)
	}
	if user != nil {
		return user, nil
	}

	user, err = m.store.CreateUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func buildTranscript(msgs []store.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}
	return b.String()
}

// summarize tries the model summarizer and degrades to a transcript prefix.
func summarize(ctx context.Context, summarizer Summarizer, transcript string) string {
	if summarizer != nil {
		summary, err := summarizer.Summarize(ctx, transcript)
		if err == nil && strings.TrimSpace(summary) != "" {
			return summary
		}
		if err != nil {
			slog.Warn("summarizer unavailable, using transcript prefix", "error", err)
		}
	}

	prefix := transcript
	if len(prefix) > autoSummaryLimit {
		prefix = prefix[:autoSummaryLimit]
	}
	return "[Auto-summary] " + prefix + "..."
}
