package threads

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/orion-companion/orion/internal/store"
	"github.com/orion-companion/orion/internal/store/sqldb"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()
	st, err := sqldb.Open("sqlite://" + filepath.Join(t.TempDir(), "orion.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return New(st), st
}

func seedUser(t *testing.T, st store.Store) *store.User {
	t.Helper()
	u, err := st.CreateUser(context.Background(), "alex")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func TestOpenThreadStartsOpen(t *testing.T) {
	m, st := newTestManager(t)
	user := seedUser(t, st)

	thread, err := m.OpenThread(context.Background(), user.ID, "Trigger: morning_checkin", map[string]any{"trigger_type": "time_based"})
	if err != nil {
		t.Fatalf("OpenThread: %v", err)
	}
	if thread.State != store.ThreadOpen {
		t.Errorf("state = %q, want open", thread.State)
	}
	if thread.Trigger != "Trigger: morning_checkin" {
		t.Errorf("trigger = %q", thread.Trigger)
	}
}

func TestUpdateStateLifecycle(t *testing.T) {
	m, st := newTestManager(t)
	user := seedUser(t, st)
	ctx := context.Background()

	thread, err := m.OpenThread(ctx, user.ID, "checkin", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.UpdateState(ctx, thread.ID, store.ThreadWaiting); err != nil {
		t.Fatalf("open→waiting: %v", err)
	}
	if err := m.UpdateState(ctx, thread.ID, store.ThreadResolved); err != nil {
		t.Fatalf("waiting→resolved: %v", err)
	}

	// Resolved is terminal.
	if err := m.UpdateState(ctx, thread.ID, store.ThreadOpen); err == nil {
		t.Error("resolved→open should be rejected")
	}
	// Unknown states are rejected.
	if err := m.UpdateState(ctx, thread.ID, "paused"); err == nil {
		t.Error("unknown state should be rejected")
	}
}

func TestGetPendingThreadsExcludesResolved(t *testing.T) {
	m, st := newTestManager(t)
	user := seedUser(t, st)
	ctx := context.Background()

	first, _ := m.OpenThread(ctx, user.ID, "first", nil)
	time.Sleep(2 * time.Millisecond)
	second, _ := m.OpenThread(ctx, user.ID, "second", nil)
	if err := m.UpdateState(ctx, first.ID, store.ThreadResolved); err != nil {
		t.Fatal(err)
	}

	pending, err := m.GetPendingThreads(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetPendingThreads: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second.ID {
		t.Errorf("pending = %v", pending)
	}
}

func TestThreadsAcceptUserNames(t *testing.T) {
	m, st := newTestManager(t)
	user := seedUser(t, st)
	ctx := context.Background()

	// Opened under the name, visible under the id and the name alike.
	thread, err := m.OpenThread(ctx, "alex", "checkin", nil)
	if err != nil {
		t.Fatalf("OpenThread by name: %v", err)
	}
	if thread.UserID != user.ID {
		t.Errorf("thread user_id = %q, want resolved id %q", thread.UserID, user.ID)
	}

	byName, err := m.GetPendingThreads(ctx, "alex")
	if err != nil {
		t.Fatal(err)
	}
	byID, err := m.GetPendingThreads(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(byName) != 1 || len(byID) != 1 || byName[0].ID != byID[0].ID {
		t.Errorf("pending by name = %v, by id = %v", byName, byID)
	}

	// Unknown callers are created on first contact, not rejected.
	if _, err := m.OpenThread(ctx, "sam", "first contact", nil); err != nil {
		t.Errorf("OpenThread for new user: %v", err)
	}
	if u, _ := st.GetUserByName(ctx, "sam"); u == nil {
		t.Error("user not created on first contact")
	}
}

// fakeThreadStore overrides GetThread so follow-up timing can be tested
// without waiting an hour.
type fakeThreadStore struct {
	store.Store
	thread *store.Thread
}

func (f *fakeThreadStore) GetThread(context.Context, string) (*store.Thread, error) {
	return f.thread, nil
}

func TestShouldFollowUp(t *testing.T) {
	tests := []struct {
		name   string
		thread *store.Thread
		want   bool
	}{
		{"waiting for two hours", &store.Thread{State: store.ThreadWaiting, UpdatedAt: time.Now().Add(-2 * time.Hour)}, true},
		{"waiting ten minutes", &store.Thread{State: store.ThreadWaiting, UpdatedAt: time.Now().Add(-10 * time.Minute)}, false},
		{"open for two hours", &store.Thread{State: store.ThreadOpen, UpdatedAt: time.Now().Add(-2 * time.Hour)}, false},
		{"missing thread", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(&fakeThreadStore{thread: tt.thread})
			got, err := m.ShouldFollowUp(context.Background(), "t1")
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ShouldFollowUp = %v, want %v", got, tt.want)
			}
		})
	}
}
