package engines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// Anthropic wraps the official SDK. System messages are hoisted into the
// top-level system parameter; the chat list carries only user/assistant
// turns.
type Anthropic struct {
	client anthropic.Client
	model  string
}

// NewAnthropic creates the engine. An empty model selects the default.
func NewAnthropic(apiKey, model string) *Anthropic {
	if model == "" {
		model = defaultAnthropicModel
	}
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (e *Anthropic) Name() string { return "anthropic" }

func (e *Anthropic) FormatMessages(prompt string, history []Message) []Message {
	return formatMessages(prompt, history)
}

func (e *Anthropic) Generate(ctx context.Context, prompt string, history []Message) string {
	resp, err := e.client.Messages.New(ctx, e.buildParams(prompt, history, 4096))
	if err != nil {
		return errString(err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return errString(fmt.Errorf("anthropic returned no text content"))
	}
	return b.String()
}

func (e *Anthropic) Stream(ctx context.Context, prompt string, history []Message, onChunk func(string)) {
	stream := e.client.Messages.NewStreaming(ctx, e.buildParams(prompt, history, 4096))

	for stream.Next() {
		event := stream.Current()
		if event.Type == "content_block_delta" && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
			onChunk(event.Delta.Text)
		}
	}
	if err := stream.Err(); err != nil {
		onChunk(errString(err))
	}
}

// IsAvailable issues a one-token request. A rate-limit rejection still
// means the credential works, so it counts as available.
func (e *Anthropic) IsAvailable(ctx context.Context) bool {
	_, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err == nil {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return false
}

func (e *Anthropic) buildParams(prompt string, history []Message, maxTokens int64) anthropic.MessageNewParams {
	var system []anthropic.TextBlockParam
	var msgs []anthropic.MessageParam

	for _, m := range e.FormatMessages(prompt, history) {
		switch m.Role {
		case RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	return params
}
