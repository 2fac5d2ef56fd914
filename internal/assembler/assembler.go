// Package assembler builds the bounded message list for a model turn:
// persona, retrieved document context, semantic recall, recent history,
// and the current prompt.
package assembler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/orion-companion/orion/internal/engines"
	"github.com/orion-companion/orion/internal/memory"
	"github.com/orion-companion/orion/internal/store"
)

const (
	recallMinScore  = 0.5
	recallMaxUsed   = 3
	recallClipChars = 200
	historyLimit    = 20
)

// DocContext retrieves document context for a prompt. Satisfied by the
// RAG ingestor.
type DocContext interface {
	BuildContext(ctx context.Context, question, userID string) (string, error)
}

// Recall retrieves semantically relevant past messages and recent history.
// Satisfied by the memory facade.
type Recall interface {
	GetRelevantContext(ctx context.Context, userID, query string, topK int) ([]memory.RecalledMessage, error)
	GetHistory(ctx context.Context, userID string, limit int) ([]store.Message, error)
}

// Assembler builds per-turn context.
type Assembler struct {
	persona   string
	recall    Recall
	docs      DocContext
	maxTokens int
}

// New creates the assembler. docs may be nil when no document store is
// wired.
func New(persona string, recall Recall, docs DocContext, maxTokens int) *Assembler {
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return &Assembler{persona: persona, recall: recall, docs: docs, maxTokens: maxTokens}
}

// Build assembles the message list for one turn. Every optional block
// degrades gracefully: a failing subsystem is logged and its block
// omitted.
func (a *Assembler) Build(ctx context.Context, userID, prompt string) []engines.Message {
	msgs := []engines.Message{{Role: engines.RoleSystem, Content: a.persona}}

	if a.docs != nil {
		docCtx, err := a.docs.BuildContext(ctx, prompt, userID)
		if err != nil {
			slog.Warn("document context unavailable", "error", err)
		} else if docCtx != "" {
			msgs = append(msgs, engines.Message{
				Role:    engines.RoleSystem,
				Content: "Relevant documents:\n\n" + docCtx,
			})
		}
	}

	if block := a.recallBlock(ctx, userID, prompt); block != "" {
		msgs = append(msgs, engines.Message{Role: engines.RoleSystem, Content: block})
	}

	history, err := a.recall.GetHistory(ctx, userID, historyLimit)
	if err != nil {
		slog.Warn("history unavailable", "error", err)
	}
	for _, m := range history {
		if m.Role == store.RoleUser || m.Role == store.RoleAssistant {
			msgs = append(msgs, engines.Message{Role: m.Role, Content: m.Content})
		}
	}

	msgs = append(msgs, engines.Message{Role: engines.RoleUser, Content: prompt})
	return TruncateContext(msgs, a.maxTokens)
}

// recallBlock formats up to three high-confidence recalled messages.
func (a *Assembler) recallBlock(ctx context.Context, userID, prompt string) string {
	recalled, err := a.recall.GetRelevantContext(ctx, userID, prompt, 5)
	if err != nil {
		slog.Warn("semantic recall unavailable", "error", err)
		return ""
	}

	var lines []string
	for _, r := range recalled {
		if r.Score <= recallMinScore {
			continue
		}
		content := r.Content
		if len(content) > recallClipChars {
			content = content[:recallClipChars]
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", r.Role, content))
		if len(lines) == recallMaxUsed {
			break
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Relevant past conversation:\n" + strings.Join(lines, "\n")
}

// TruncateContext bounds the list to maxTokens, approximating tokens as
// chars/4. System messages stay in front; non-system messages are kept
// newest-first until the budget runs out. When the system messages alone
// exceed the budget, only the first survives.
func TruncateContext(msgs []engines.Message, maxTokens int) []engines.Message {
	budget := maxTokens * 4

	var system, rest []engines.Message
	for _, m := range msgs {
		if m.Role == engines.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}

	used := 0
	for _, m := range system {
		used += len(m.Content)
	}
	if used > budget {
		if len(system) == 0 {
			return nil
		}
		return system[:1]
	}

	// Accept from newest backwards.
	keepFrom := len(rest)
	for i := len(rest) - 1; i >= 0; i-- {
		if used+len(rest[i].Content) > budget {
			break
		}
		used += len(rest[i].Content)
		keepFrom = i
	}

	out := make([]engines.Message, 0, len(system)+len(rest)-keepFrom)
	out = append(out, system...)
	out = append(out, rest[keepFrom:]...)
	return out
}
