// Package orchestrator routes work to the first available provider engine
// according to per-task priority lists.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/orion-companion/orion/internal/auth"
	"github.com/orion-companion/orion/internal/config"
	"github.com/orion-companion/orion/internal/engines"
)

// Task types with dedicated priority lists. Anything else routes like
// reasoning.
const (
	TaskReasoning  = "reasoning"
	TaskCode       = "code"
	TaskFast       = "fast"
	TaskMultimodal = "multimodal"
	TaskVision     = "vision"
)

var taskPriorities = map[string][]string{
	TaskReasoning:  {"anthropic", "openai", "gemini", "openrouter", "groq", "local"},
	TaskCode:       {"openai", "anthropic", "groq", "openrouter", "local"},
	TaskFast:       {"groq", "gemini", "local", "anthropic"},
	TaskMultimodal: {"gemini", "openai", "anthropic"},
	TaskVision:     {"gemini", "openai", "anthropic"},
}

// engineRoster is every provider, in diagnostic order.
var engineRoster = []string{"anthropic", "openai", "gemini", "openrouter", "groq", "mistral", "local"}

// Orchestrator lazily builds one engine per provider and routes tasks.
type Orchestrator struct {
	cfg    *config.Config
	broker *auth.Broker

	mu      sync.Mutex
	engines map[string]engines.Engine
}

// New creates the orchestrator.
func New(cfg *config.Config, broker *auth.Broker) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		broker:  broker,
		engines: make(map[string]engines.Engine),
	}
}

// Route returns the first available engine for the task type. When the
// task's whole priority list is down it falls back to the full roster;
// when nothing answers, the error names each provider and why it was
// skipped.
func (o *Orchestrator) Route(ctx context.Context, taskType string) (engines.Engine, error) {
	priorities, ok := taskPriorities[taskType]
	if !ok {
		priorities = taskPriorities[TaskReasoning]
	}

	tried := make(map[string]bool)
	var reasons []string

	for _, provider := range priorities {
		tried[provider] = true
		if engine, reason := o.tryProvider(ctx, provider); engine != nil {
			slog.Debug("routed task", "task", taskType, "provider", provider)
			return engine, nil
		} else {
			reasons = append(reasons, provider+": "+reason)
		}
	}

	// Priority list exhausted; sweep the rest of the roster once.
	for _, provider := range engineRoster {
		if tried[provider] {
			continue
		}
		if engine, reason := o.tryProvider(ctx, provider); engine != nil {
			slog.Info("routed task outside priority list", "task", taskType, "provider", provider)
			return engine, nil
		} else {
			reasons = append(reasons, provider+": "+reason)
		}
	}

	return nil, fmt.Errorf("no provider available for %s task:\n  %s", taskType, strings.Join(reasons, "\n  "))
}

// tryProvider returns the engine when usable, else ("", reason).
func (o *Orchestrator) tryProvider(ctx context.Context, provider string) (engines.Engine, string) {
	engine, err := o.engine(provider)
	if err != nil {
		return nil, err.Error()
	}
	if !engine.IsAvailable(ctx) {
		return nil, "not available (no credential or endpoint unreachable)"
	}
	return engine, ""
}

// engine returns the cached engine for the provider, constructing it on
// first use.
func (o *Orchestrator) engine(provider string) (engines.Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if e, ok := o.engines[provider]; ok {
		return e, nil
	}

	e, err := o.build(provider)
	if err != nil {
		return nil, err
	}
	o.engines[provider] = e
	return e, nil
}

func (o *Orchestrator) build(provider string) (engines.Engine, error) {
	cred := func(ctx context.Context) string {
		return o.broker.GetToken(ctx, provider)
	}

	switch provider {
	case "anthropic":
		key := o.cfg.Providers.Anthropic.APIKey
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		return engines.NewAnthropic(key, o.cfg.Providers.Anthropic.Model), nil
	case "openai":
		return engines.NewOpenAI(cred, o.cfg.Providers.OpenAI.Model, o.cfg.Providers.OpenAI.APIBase), nil
	case "gemini":
		return engines.NewGemini(cred, o.cfg.Providers.Gemini.Model), nil
	case "openrouter":
		return engines.NewOpenRouter(cred, o.cfg.Providers.OpenRouter.Model), nil
	case "groq":
		return engines.NewGroq(cred, o.cfg.Providers.Groq.Model), nil
	case "mistral":
		return engines.NewMistral(cred, o.cfg.Providers.Mistral.Model), nil
	case "local":
		return engines.NewLocal(o.cfg.Providers.Local.BaseURL, o.cfg.Providers.Local.Model), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// Status is one provider's availability report.
type Status struct {
	Provider  string
	Available bool
	Reason    string // why unavailable, empty when available
}

// ProviderStatus probes every provider in roster order.
func (o *Orchestrator) ProviderStatus(ctx context.Context) []Status {
	out := make([]Status, 0, len(engineRoster))
	for _, provider := range engineRoster {
		engine, reason := o.tryProvider(ctx, provider)
		out = append(out, Status{
			Provider:  provider,
			Available: engine != nil,
			Reason:    reason,
		})
	}
	return out
}

// Summarize condenses a transcript through the reasoning route. Satisfies
// the memory compression capability.
func (o *Orchestrator) Summarize(ctx context.Context, transcript string) (string, error) {
	engine, err := o.Route(ctx, TaskReasoning)
	if err != nil {
		return "", err
	}

	prompt := "Summarize this conversation in 2-4 sentences, keeping concrete facts about the user:\n\n" + transcript
	reply := engine.Generate(ctx, prompt, nil)
	if engines.IsErrorReply(reply) {
		return "", fmt.Errorf("summarization failed: %s", reply)
	}
	return reply, nil
}
