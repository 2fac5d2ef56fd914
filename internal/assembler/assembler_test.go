package assembler

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/orion-companion/orion/internal/engines"
	"github.com/orion-companion/orion/internal/memory"
	"github.com/orion-companion/orion/internal/store"
)

type fakeRecall struct {
	recalled   []memory.RecalledMessage
	history    []store.Message
	recallErr  error
	historyErr error
}

func (f *fakeRecall) GetRelevantContext(context.Context, string, string, int) ([]memory.RecalledMessage, error) {
	return f.recalled, f.recallErr
}

func (f *fakeRecall) GetHistory(context.Context, string, int) ([]store.Message, error) {
	return f.history, f.historyErr
}

type fakeDocs struct {
	context string
	err     error
}

func (f *fakeDocs) BuildContext(context.Context, string, string) (string, error) {
	return f.context, f.err
}

func TestBuildFullAssembly(t *testing.T) {
	recall := &fakeRecall{
		recalled: []memory.RecalledMessage{
			{Role: "user", Content: "my dog is called Rex", Score: 0.9},
			{Role: "user", Content: "low confidence detail", Score: 0.3},
		},
		history: []store.Message{
			{Role: store.RoleUser, Content: "earlier question"},
			{Role: store.RoleAssistant, Content: "earlier answer"},
		},
	}
	docs := &fakeDocs{context: "[1] Source: guide.md (chunk 0) (relevance: 0.80)\nsome text"}
	a := New("You are Orion.", recall, docs, 4000)

	msgs := a.Build(context.Background(), "alex", "what is my dog called?")

	if msgs[0].Role != engines.RoleSystem || msgs[0].Content != "You are Orion." {
		t.Errorf("persona not first: %v", msgs[0])
	}
	if !strings.Contains(msgs[1].Content, "Relevant documents") {
		t.Errorf("doc block missing: %v", msgs[1])
	}
	if !strings.Contains(msgs[2].Content, "Rex") {
		t.Errorf("recall block missing: %v", msgs[2])
	}
	if strings.Contains(msgs[2].Content, "low confidence") {
		t.Error("low-score recall leaked into context")
	}
	last := msgs[len(msgs)-1]
	if last.Role != engines.RoleUser || last.Content != "what is my dog called?" {
		t.Errorf("current turn not last: %v", last)
	}
	if msgs[len(msgs)-2].Content != "earlier answer" {
		t.Errorf("history not before current turn: %v", msgs[len(msgs)-2])
	}
}

func TestBuildDegradesGracefully(t *testing.T) {
	recall := &fakeRecall{
		recallErr:  errors.New("vector store down"),
		historyErr: errors.New("db down"),
	}
	docs := &fakeDocs{err: errors.New("rag down")}
	a := New("persona", recall, docs, 4000)

	msgs := a.Build(context.Background(), "alex", "hello")
	if len(msgs) != 2 {
		t.Fatalf("msgs = %d, want persona + turn only", len(msgs))
	}
	if msgs[0].Content != "persona" || msgs[1].Content != "hello" {
		t.Errorf("unexpected assembly: %v", msgs)
	}
}

func TestRecallClipAndCap(t *testing.T) {
	long := strings.Repeat("x", 500)
	recall := &fakeRecall{
		recalled: []memory.RecalledMessage{
			{Role: "user", Content: long, Score: 0.9},
			{Role: "user", Content: "two", Score: 0.8},
			{Role: "user", Content: "three", Score: 0.7},
			{Role: "user", Content: "four", Score: 0.6},
		},
	}
	a := New("persona", recall, nil, 4000)

	block := a.recallBlock(context.Background(), "alex", "query")
	lines := strings.Split(block, "\n")
	// Header plus at most three entries.
	if len(lines) != 1+recallMaxUsed {
		t.Fatalf("lines = %d, want %d", len(lines), 1+recallMaxUsed)
	}
	if strings.Contains(block, "four") {
		t.Error("more than three recalled messages used")
	}
	for _, line := range lines[1:] {
		if len(line) > recallClipChars+len("- [user] ") {
			t.Errorf("recall entry not clipped: %d chars", len(line))
		}
	}
}

func TestTruncateKeepsSystemInFront(t *testing.T) {
	msgs := []engines.Message{
		{Role: engines.RoleSystem, Content: strings.Repeat("s", 100)},
		{Role: engines.RoleUser, Content: strings.Repeat("a", 400)},
		{Role: engines.RoleAssistant, Content: strings.Repeat("b", 400)},
		{Role: engines.RoleUser, Content: strings.Repeat("c", 400)},
	}

	// Budget of 150 tokens = 600 chars: system (100) + newest (400) fit,
	// the two older turns do not.
	got := TruncateContext(msgs, 150)
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].Role != engines.RoleSystem {
		t.Error("system message not first")
	}
	if got[1].Content[0] != 'c' {
		t.Error("newest message not kept")
	}
}

func TestTruncateBudgetRespected(t *testing.T) {
	var msgs []engines.Message
	msgs = append(msgs, engines.Message{Role: engines.RoleSystem, Content: strings.Repeat("s", 200)})
	for i := 0; i < 50; i++ {
		msgs = append(msgs, engines.Message{Role: engines.RoleUser, Content: strings.Repeat("m", 100)})
	}

	maxTokens := 500
	got := TruncateContext(msgs, maxTokens)

	chars := 0
	for _, m := range got {
		chars += len(m.Content)
	}
	if chars/4 > maxTokens {
		t.Errorf("truncated context is %d tokens, budget %d", chars/4, maxTokens)
	}
}

func TestTruncateOversizedSystem(t *testing.T) {
	msgs := []engines.Message{
		{Role: engines.RoleSystem, Content: strings.Repeat("s", 1000)},
		{Role: engines.RoleSystem, Content: strings.Repeat("t", 1000)},
		{Role: engines.RoleUser, Content: "hi"},
	}

	got := TruncateContext(msgs, 100)
	if len(got) != 1 || got[0].Content[0] != 's' {
		t.Errorf("want only the first system message, got %v", got)
	}
}
