// Package engines adapts each model provider to one uniform surface:
// generate and stream never return errors, they surface failures as
// "[Error] ..." strings so callers can compose providers blindly.
package engines

import (
	"context"
	"strings"
)

// Message roles follow the canonical chat format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Engine is one provider adapter.
type Engine interface {
	// Name returns the provider identifier ("anthropic", "openai", ...).
	Name() string

	// Generate returns the model's reply, or an "[Error] ..." string.
	// It never returns an error value.
	Generate(ctx context.Context, prompt string, history []Message) string

	// Stream delivers non-empty content deltas to onChunk. On failure it
	// delivers a single "[Error] ..." chunk and stops.
	Stream(ctx context.Context, prompt string, history []Message, onChunk func(string))

	// IsAvailable probes whether the provider can serve requests now.
	IsAvailable(ctx context.Context) bool

	// FormatMessages produces the canonical message list: system messages
	// first, prior turns in order, the current prompt as the final user turn.
	FormatMessages(prompt string, history []Message) []Message
}

// formatMessages is the shared FormatMessages implementation.
func formatMessages(prompt string, history []Message) []Message {
	msgs := make([]Message, 0, len(history)+2)
	for _, m := range history {
		if m.Role == RoleSystem {
			msgs = append(msgs, m)
		}
	}
	for _, m := range history {
		if m.Role != RoleSystem {
			msgs = append(msgs, m)
		}
	}
	return append(msgs, Message{Role: RoleUser, Content: prompt})
}

// errString renders a failure for the uniform error surface.
func errString(err error) string {
	return "[Error] " + err.Error()
}

// IsErrorReply reports whether a generate/stream result is the error
// sentinel rather than model output.
func IsErrorReply(s string) bool {
	return strings.HasPrefix(s, "[Error] ")
}
