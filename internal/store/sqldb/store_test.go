package sqldb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/orion-companion/orion/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orion.db")
	s, err := Open("sqlite://" + path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func seedUser(t *testing.T, s *Store) *store.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), "alex")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func insertMsg(t *testing.T, s *Store, userID string, sessionID *string, role, content string, ts time.Time) string {
	t.Helper()
	id := uuid.Must(uuid.NewV7()).String()
	err := s.InsertMessage(context.Background(), &store.Message{
		ID:        id,
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	return id
}

func TestRebind(t *testing.T) {
	s := &Store{isSQLite: true}
	tests := []struct{ in, want string }{
		{"SELECT * FROM t WHERE a = $1 AND b = $2", "SELECT * FROM t WHERE a = ? AND b = ?"},
		{"VALUES ($1, $2, $10)", "VALUES (?, ?, ?)"},
		{"no placeholders", "no placeholders"},
		{"cost $ sign", "cost $ sign"},
	}
	for _, tt := range tests {
		if got := s.q(tt.in); got != tt.want {
			t.Errorf("q(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s)

	byID, err := s.GetUser(ctx, u.ID)
	if err != nil || byID == nil || byID.Name != "alex" {
		t.Fatalf("GetUser = %+v, %v", byID, err)
	}
	byName, err := s.GetUserByName(ctx, "alex")
	if err != nil || byName == nil || byName.ID != u.ID {
		t.Fatalf("GetUserByName = %+v, %v", byName, err)
	}
	missing, err := s.GetUserByName(ctx, "ghost")
	if err != nil || missing != nil {
		t.Fatalf("missing user should be (nil, nil), got %+v, %v", missing, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s)

	if sess, err := s.ActiveSession(ctx, u.ID); err != nil || sess != nil {
		t.Fatalf("fresh user should have no active session, got %+v, %v", sess, err)
	}

	sess, err := s.CreateSession(ctx, u.ID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	active, err := s.ActiveSession(ctx, u.ID)
	if err != nil || active == nil || active.ID != sess.ID {
		t.Fatalf("ActiveSession = %+v, %v", active, err)
	}

	if err := s.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if after, err := s.ActiveSession(ctx, u.ID); err != nil || after != nil {
		t.Fatalf("ended session still active: %+v, %v", after, err)
	}
}

func TestMessageCountMatchesRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s)
	sess, _ := s.CreateSession(ctx, u.ID)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 4; i++ {
		insertMsg(t, s, u.ID, &sess.ID, store.RoleUser, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	got, err := s.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	msgs, err := s.SessionMessages(ctx, sess.ID)
	if err != nil {
		t.Fatalf("SessionMessages: %v", err)
	}
	if got.MessageCount != len(msgs) {
		t.Errorf("message_count = %d, rows = %d", got.MessageCount, len(msgs))
	}
}

func TestRecentMessagesAscending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s)
	sess, _ := s.CreateSession(ctx, u.ID)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		insertMsg(t, s, u.ID, &sess.ID, store.RoleUser, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
	}

	msgs, err := s.RecentMessages(ctx, u.ID, 3)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	// The three newest, oldest of those first.
	if msgs[0].Content != "m2" || msgs[2].Content != "m4" {
		t.Errorf("order wrong: %s .. %s", msgs[0].Content, msgs[2].Content)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Errorf("timestamps not ascending at %d", i)
		}
	}
}

func TestThreadStateMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s)

	th, err := s.CreateThread(ctx, u.ID, "Trigger: morning", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.State != store.ThreadOpen {
		t.Fatalf("new thread state = %q", th.State)
	}

	if err := s.UpdateThreadState(ctx, th.ID, store.ThreadWaiting); err != nil {
		t.Fatalf("open → waiting: %v", err)
	}
	if err := s.UpdateThreadState(ctx, th.ID, store.ThreadOpen); err != nil {
		t.Fatalf("waiting → open: %v", err)
	}
	if err := s.UpdateThreadState(ctx, th.ID, store.ThreadResolved); err != nil {
		t.Fatalf("open → resolved: %v", err)
	}
	// Resolved is terminal.
	if err := s.UpdateThreadState(ctx, th.ID, store.ThreadOpen); err == nil {
		t.Error("resolved → open should fail")
	}
	if err := s.UpdateThreadState(ctx, th.ID, "bogus"); err == nil {
		t.Error("unknown state should fail")
	}
}

func TestPendingThreadsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s)

	first, _ := s.CreateThread(ctx, u.ID, "t1", nil)
	time.Sleep(5 * time.Millisecond)
	second, _ := s.CreateThread(ctx, u.ID, "t2", nil)
	time.Sleep(5 * time.Millisecond)
	third, _ := s.CreateThread(ctx, u.ID, "t3", nil)

	if err := s.UpdateThreadState(ctx, second.ID, store.ThreadResolved); err != nil {
		t.Fatal(err)
	}

	pending, err := s.PendingThreads(ctx, u.ID)
	if err != nil {
		t.Fatalf("PendingThreads: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("len = %d, want 2", len(pending))
	}
	if pending[0].ID != third.ID || pending[1].ID != first.ID {
		t.Errorf("order wrong: %s, %s", pending[0].Trigger, pending[1].Trigger)
	}
}

func TestCompressSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s)
	sess, _ := s.CreateSession(ctx, u.ID)

	base := time.Now().UTC().Add(-40 * 24 * time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, insertMsg(t, s, u.ID, &sess.ID, store.RoleUser, fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	if err := s.EndSession(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}

	deleted, err := s.CompressSession(ctx, &store.CompressedMemory{
		ID:                   uuid.Must(uuid.NewV7()).String(),
		UserID:               u.ID,
		SessionID:            sess.ID,
		Summary:              "talked about m0..m4",
		OriginalMessageCount: 5,
		DateRangeStart:       base,
		DateRangeEnd:         base.Add(4 * time.Minute),
	})
	if err != nil {
		t.Fatalf("CompressSession: %v", err)
	}
	if len(deleted) != 5 {
		t.Errorf("deleted ids = %d, want 5", len(deleted))
	}

	msgs, _ := s.SessionMessages(ctx, sess.ID)
	if len(msgs) != 0 {
		t.Errorf("messages survived compression: %d", len(msgs))
	}
	got, _ := s.GetSession(ctx, sess.ID)
	if got.Summary == nil || *got.Summary == "" {
		t.Error("session summary not stamped")
	}

	// map of original ids for membership check
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	for _, id := range deleted {
		if !want[id] {
			t.Errorf("unexpected deleted id %s", id)
		}
	}
}

func TestSessionsEndedBeforeSkipsSummarized(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s)

	old, _ := s.CreateSession(ctx, u.ID)
	_ = s.EndSession(ctx, old.ID)

	cutoff := time.Now().UTC().Add(time.Hour)
	candidates, err := s.SessionsEndedBefore(ctx, u.ID, cutoff)
	if err != nil {
		t.Fatalf("SessionsEndedBefore: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(candidates))
	}

	_, err = s.CompressSession(ctx, &store.CompressedMemory{
		ID:             uuid.Must(uuid.NewV7()).String(),
		UserID:         u.ID,
		SessionID:      old.ID,
		Summary:        "done",
		DateRangeStart: time.Now().UTC(),
		DateRangeEnd:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}

	candidates, _ = s.SessionsEndedBefore(ctx, u.ID, cutoff)
	if len(candidates) != 0 {
		t.Errorf("summarized session offered again: %d", len(candidates))
	}
}

func TestAppendTriggerLog(t *testing.T) {
	s := newTestStore(t)
	u := seedUser(t, s)

	err := s.AppendTriggerLog(context.Background(), &store.TriggerLog{
		UserID:      u.ID,
		TriggerType: "time_based",
		Reason:      "morning check-in",
		Urgency:     "normal",
		ActedOn:     true,
	})
	if err != nil {
		t.Fatalf("AppendTriggerLog: %v", err)
	}
}
