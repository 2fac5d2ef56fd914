package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orion-companion/orion/internal/store"
	"github.com/orion-companion/orion/internal/store/sqldb"
	"github.com/orion-companion/orion/internal/vector"
)

// fakeVector records calls and can be told to fail or to return canned hits.
type fakeVector struct {
	upserts    map[string]map[string]any
	deleted    []string
	hits       []vector.Result
	upsertErr  error
	lastFilter map[string]string
}

func newFakeVector() *fakeVector {
	return &fakeVector{upserts: make(map[string]map[string]any)}
}

func (f *fakeVector) Upsert(_ context.Context, id, content string, metadata map[string]any) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["text"] = content
	f.upserts[id] = meta
	return nil
}

func (f *fakeVector) Search(_ context.Context, _ string, _ int, filter map[string]string) ([]vector.Result, error) {
	f.lastFilter = filter
	return f.hits, nil
}

func (f *fakeVector) Delete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeVector) Stats(_ context.Context) vector.Stats {
	return vector.Stats{Backend: "fake", TotalVectors: len(f.upserts)}
}

type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) Summarize(_ context.Context, _ string) (string, error) {
	return f.summary, f.err
}

func newTestMemory(t *testing.T) (*Memory, *fakeVector, store.Store) {
	t.Helper()
	st, err := sqldb.Open("sqlite://" + filepath.Join(t.TempDir(), "orion.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	vec := newFakeVector()
	return New(st, vec), vec, st
}

func TestSaveMessageWriteThrough(t *testing.T) {
	m, vec, st := newTestMemory(t)
	ctx := context.Background()

	msg, err := m.SaveMessage(ctx, "alex", store.RoleUser, "remember my birthday", map[string]any{"channel": "telegram"})
	if err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if msg.ID == "" || msg.SessionID == nil {
		t.Fatal("message missing id or session")
	}

	user, err := st.GetUserByName(ctx, "alex")
	if err != nil || user == nil {
		t.Fatalf("user not created: %v", err)
	}
	session, err := st.GetSession(ctx, *msg.SessionID)
	if err != nil || session == nil {
		t.Fatalf("session not created: %v", err)
	}
	if session.MessageCount != 1 {
		t.Errorf("message_count = %d, want 1", session.MessageCount)
	}

	meta, ok := vec.upserts[msg.ID]
	if !ok {
		t.Fatal("message not mirrored into vector store")
	}
	for _, key := range []string{"user_id", "role", "timestamp", "text", "channel"} {
		if meta[key] == nil || meta[key] == "" {
			t.Errorf("vector metadata missing %q", key)
		}
	}
	if _, err := time.Parse(time.RFC3339, meta["timestamp"].(string)); err != nil {
		t.Errorf("timestamp not RFC3339: %v", meta["timestamp"])
	}
}

func TestSaveMessageReusesOpenSession(t *testing.T) {
	m, _, _ := newTestMemory(t)
	ctx := context.Background()

	first, err := m.SaveMessage(ctx, "alex", store.RoleUser, "one", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.SaveMessage(ctx, "alex", store.RoleAssistant, "two", nil)
	if err != nil {
		t.Fatal(err)
	}
	if *first.SessionID != *second.SessionID {
		t.Error("consecutive messages should share the open session")
	}
}

func TestSaveMessageSurvivesVectorFailure(t *testing.T) {
	m, vec, st := newTestMemory(t)
	vec.upsertErr = errors.New("vector backend down")
	ctx := context.Background()

	msg, err := m.SaveMessage(ctx, "alex", store.RoleUser, "still persisted", nil)
	if err != nil {
		t.Fatalf("SaveMessage should not fail on vector error: %v", err)
	}

	user, _ := st.GetUserByName(ctx, "alex")
	msgs, err := st.RecentMessages(ctx, user.ID, 10)
	if err != nil || len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("relational write missing: %v (%d msgs)", err, len(msgs))
	}
}

func TestGetHistoryAscending(t *testing.T) {
	m, _, _ := newTestMemory(t)
	ctx := context.Background()

	for _, content := range []string{"a", "b", "c", "d"} {
		if _, err := m.SaveMessage(ctx, "alex", store.RoleUser, content, nil); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	history, err := m.GetHistory(ctx, "alex", 3)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history = %d messages, want 3", len(history))
	}
	if history[0].Content != "b" || history[2].Content != "d" {
		t.Errorf("history order wrong: %s..%s", history[0].Content, history[2].Content)
	}
}

func TestGetRelevantContextScopesToUser(t *testing.T) {
	m, vec, st := newTestMemory(t)
	ctx := context.Background()

	if _, err := m.SaveMessage(ctx, "alex", store.RoleUser, "seed", nil); err != nil {
		t.Fatal(err)
	}
	user, _ := st.GetUserByName(ctx, "alex")

	vec.hits = []vector.Result{
		{ID: "m1", Score: 0.9, Metadata: map[string]string{
			"role": "user", "text": "likes espresso", "timestamp": "2026-01-02T03:04:05Z",
		}},
	}

	recalled, err := m.GetRelevantContext(ctx, "alex", "coffee", 5)
	if err != nil {
		t.Fatalf("GetRelevantContext: %v", err)
	}
	if vec.lastFilter["user_id"] != user.ID {
		t.Errorf("recall filter user_id = %q, want %q", vec.lastFilter["user_id"], user.ID)
	}
	if len(recalled) != 1 || recalled[0].Content != "likes espresso" || recalled[0].Role != "user" {
		t.Errorf("projection wrong: %+v", recalled)
	}
}

func TestCompressOldSessions(t *testing.T) {
	m, vec, st := newTestMemory(t)
	ctx := context.Background()

	contents := []string{"one", "two", "three", "four", "five"}
	var msgIDs []string
	var sessionID string
	for _, c := range contents {
		msg, err := m.SaveMessage(ctx, "alex", store.RoleUser, c, nil)
		if err != nil {
			t.Fatal(err)
		}
		msgIDs = append(msgIDs, msg.ID)
		sessionID = *msg.SessionID
		time.Sleep(2 * time.Millisecond)
	}
	if err := m.EndSession(ctx, "alex"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	summarizer := &fakeSummarizer{summary: "talked about numbers"}
	n, err := m.CompressOldSessions(ctx, "alex", 0, summarizer)
	if err != nil {
		t.Fatalf("CompressOldSessions: %v", err)
	}
	if n != 1 {
		t.Fatalf("compressed = %d, want 1", n)
	}

	session, err := st.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		t.Fatal(err)
	}
	if session.Summary == nil || *session.Summary != "talked about numbers" {
		t.Errorf("summary not stamped: %v", session.Summary)
	}

	remaining, err := st.SessionMessages(ctx, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("messages not deleted: %d left", len(remaining))
	}

	if len(vec.deleted) != len(msgIDs) {
		t.Errorf("vector cleanup deleted %d ids, want %d", len(vec.deleted), len(msgIDs))
	}
}

func TestCompressMultipleSessionsOnePass(t *testing.T) {
	m, _, st := newTestMemory(t)
	ctx := context.Background()

	var sessionIDs []string
	for _, content := range []string{"first chat", "second chat"} {
		msg, err := m.SaveMessage(ctx, "alex", store.RoleUser, content, nil)
		if err != nil {
			t.Fatal(err)
		}
		sessionIDs = append(sessionIDs, *msg.SessionID)
		if err := m.EndSession(ctx, "alex"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	summarizer := &fakeSummarizer{summary: "recap"}
	n, err := m.CompressOldSessions(ctx, "alex", 0, summarizer)
	if err != nil {
		t.Fatalf("CompressOldSessions: %v", err)
	}
	if n != 2 {
		t.Fatalf("compressed = %d, want 2", n)
	}
	for _, id := range sessionIDs {
		session, err := st.GetSession(ctx, id)
		if err != nil || session == nil {
			t.Fatal(err)
		}
		if session.Summary == nil {
			t.Errorf("session %s not summarized", id)
		}
	}
}

func TestCompressFallbackSummary(t *testing.T) {
	m, _, st := newTestMemory(t)
	ctx := context.Background()

	msg, err := m.SaveMessage(ctx, "alex", store.RoleUser, strings.Repeat("x", 2000), nil)
	if err != nil {
		t.Fatal(err)
	}
	sessionID := *msg.SessionID
	if err := m.EndSession(ctx, "alex"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	summarizer := &fakeSummarizer{err: errors.New("no provider available")}
	if _, err := m.CompressOldSessions(ctx, "alex", 0, summarizer); err != nil {
		t.Fatal(err)
	}

	session, _ := st.GetSession(ctx, sessionID)
	if session.Summary == nil {
		t.Fatal("summary missing")
	}
	if !strings.HasPrefix(*session.Summary, "[Auto-summary] ") || !strings.HasSuffix(*session.Summary, "...") {
		t.Errorf("fallback shape wrong: %.60s", *session.Summary)
	}
	if len(*session.Summary) > len("[Auto-summary] ")+autoSummaryLimit+len("...") {
		t.Errorf("fallback summary too long: %d", len(*session.Summary))
	}
}

func TestCompressSkipsSummarizedSessions(t *testing.T) {
	m, _, _ := newTestMemory(t)
	ctx := context.Background()

	if _, err := m.SaveMessage(ctx, "alex", store.RoleUser, "hello", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.EndSession(ctx, "alex"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	summarizer := &fakeSummarizer{summary: "greeting"}
	if n, _ := m.CompressOldSessions(ctx, "alex", 0, summarizer); n != 1 {
		t.Fatalf("first pass compressed %d, want 1", n)
	}
	if n, _ := m.CompressOldSessions(ctx, "alex", 0, summarizer); n != 0 {
		t.Errorf("second pass compressed %d, want 0", n)
	}
}
