// Package threads manages proactive conversation threads and their
// open → waiting → resolved lifecycle.
package threads

import (
	"context"
	"fmt"
	"time"

	"github.com/orion-companion/orion/internal/store"
)

// followUpAfter is how long a waiting thread sits before a follow-up is due.
const followUpAfter = time.Hour

// Manager wraps the relational store's thread operations. Callers may pass
// either a user id or a user name; names are resolved before any row is
// touched.
type Manager struct {
	store store.Store
}

// New creates the manager.
func New(st store.Store) *Manager {
	return &Manager{store: st}
}

// OpenThread starts a new thread in the open state.
func (m *Manager) OpenThread(ctx context.Context, userID, triggerReason string, threadCtx map[string]any) (*store.Thread, error) {
	user, err := m.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.store.CreateThread(ctx, user.ID, triggerReason, threadCtx)
}

// UpdateState transitions a thread, rejecting invalid transitions and
// unknown states.
func (m *Manager) UpdateState(ctx context.Context, id, state string) error {
	return m.store.UpdateThreadState(ctx, id, state)
}

// GetPendingThreads returns every unresolved thread, newest first.
func (m *Manager) GetPendingThreads(ctx context.Context, userID string) ([]store.Thread, error) {
	user, err := m.resolveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.store.PendingThreads(ctx, user.ID)
}

// ShouldFollowUp reports whether the thread has been waiting on the user
// for at least an hour.
func (m *Manager) ShouldFollowUp(ctx context.Context, id string) (bool, error) {
	thread, err := m.store.GetThread(ctx, id)
	if err != nil {
		return false, err
	}
	if thread == nil || thread.State != store.ThreadWaiting {
		return false, nil
	}
	return time.Since(thread.UpdatedAt) >= followUpAfter, nil
}

// resolveUser accepts a user id or name, creating the user on first
// contact so thread rows always reference a real user.
func (m *Manager) resolveUser(ctx context.Context, userID string) (*store.User, error) {
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
