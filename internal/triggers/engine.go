package triggers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/orion-companion/orion/internal/store"
)

// document is the on-disk shape of the triggers file.
type document struct {
	Triggers []Trigger `yaml:"triggers"`
}

// Engine loads, evaluates, and persists the trigger set.
type Engine struct {
	path  string
	store store.Store // trigger log, may be nil

	mu       sync.Mutex
	triggers []Trigger
}

// NewEngine loads the trigger file, writing the default set first when the
// file does not exist.
func NewEngine(path string, st store.Store) (*Engine, error) {
	e := &Engine{path: path, store: st}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		e.triggers = defaultTriggers()
		if err := e.persist(); err != nil {
			return nil, fmt.Errorf("write default triggers: %w", err)
		}
		slog.Info("default triggers written", "path", path, "count", len(e.triggers))
		return e, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read triggers: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse triggers: %w", err)
	}
	e.triggers = doc.Triggers
	return e, nil
}

func intPtr(v int) *int { return &v }

func defaultTriggers() []Trigger {
	return []Trigger{
		{
			ID:              "morning_greeting",
			Type:            TypeTimeBased,
			Condition:       Condition{Hour: intPtr(9), Minute: intPtr(0)},
			MessageTemplate: "Good morning! It's {time} on {day}. Anything I can help you plan today?",
			Enabled:         true,
		},
		{
			ID:              "evening_reflection",
			Type:            TypeTimeBased,
			Condition:       Condition{Hour: intPtr(21), Minute: intPtr(30)},
			MessageTemplate: "Evening check-in for {date}. How did the day go?",
			Enabled:         true,
		},
		{
			ID:              "inactivity_checkin",
			Type:            TypeInactivity,
			Condition:       Condition{Hours: 24},
			MessageTemplate: "It's been {hours} hours since we last talked. Just checking in!",
			Enabled:         true,
		},
	}
}

// Triggers returns a copy of the current trigger set.
func (e *Engine) Triggers() []Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trigger, len(e.triggers))
	copy(out, e.triggers)
	return out
}

// GetFired evaluates every enabled trigger against the context. A failure
// inside one trigger is logged and does not stop the others.
func (e *Engine) GetFired(ctx Context) []Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired []Trigger
	for i := range e.triggers {
		t := &e.triggers[i]
		if !t.Enabled {
			continue
		}
		ok, err := t.Evaluate(ctx)
		if err != nil {
			slog.Warn("trigger evaluation failed", "trigger", t.ID, "error", err)
			continue
		}
		if ok {
			fired = append(fired, *t)
		}
	}
	return fired
}

// MarkFired stamps the trigger's last_fired, persists the whole set, and
// appends a trigger-log row best-effort.
func (e *Engine) MarkFired(ctx context.Context, id, userID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var fired *Trigger
	for i := range e.triggers {
		if e.triggers[i].ID == id {
			fired = &e.triggers[i]
			break
		}
	}
	if fired == nil {
		return fmt.Errorf("unknown trigger %q", id)
	}

	now := time.Now()
	fired.LastFired = &now
	if err := e.persist(); err != nil {
		return err
	}

	if e.store != nil {
		err := e.store.AppendTriggerLog(ctx, &store.TriggerLog{
			UserID:      userID,
			TriggerType: fired.Type,
			Reason:      fired.ID,
			Urgency:     "medium",
			ActedOn:     true,
		})
		if err != nil {
			slog.Warn("trigger log append failed", "trigger", id, "error", err)
		}
	}
	return nil
}

// persist writes the full trigger set back to the YAML file. Callers hold
// the mutex.
func (e *Engine) persist() error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("create triggers dir: %w", err)
	}
	data, err := yaml.Marshal(document{Triggers: e.triggers})
	if err != nil {
		return fmt.Errorf("marshal triggers: %w", err)
	}
	if err := os.WriteFile(e.path, data, 0o644); err != nil {
		return fmt.Errorf("write triggers: %w", err)
	}
	return nil
}
