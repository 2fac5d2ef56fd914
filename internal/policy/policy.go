// Package policy loads and validates the declarative permission policy.
// The policy is a YAML document with a fixed set of sections; the sandbox
// consults it on every tagged action.
package policy

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/orion-companion/orion/internal/config"
)

// RequiredSections lists every section a valid policy must declare.
var RequiredSections = []string{
	"browsing", "search", "file_system", "terminal", "app_control",
	"input_control", "calendar", "system_info", "camera", "voice", "proactive",
}

// requiredFields maps a section to the fields it must declare beyond "enabled".
var requiredFields = map[string][]string{
	"file_system": {"read", "write", "delete"},
	"calendar":    {"read", "write"},
	"search":      {"engine"},
	"camera":      {"mode"},
	"voice":       {"tts_engine", "stt_engine"},
	"proactive":   {"max_messages_per_hour"},
}

// QuietHours is a wall-clock interval in HH:MM; start > end wraps midnight.
type QuietHours struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Section is one policy section. Presence-sensitive fields are pointers so
// validation can distinguish "declared false" from "missing".
type Section struct {
	Enabled        *bool  `yaml:"enabled"`
	RequireConfirm bool   `yaml:"require_confirm"`
	Read           *bool  `yaml:"read"`
	Write          *bool  `yaml:"write"`
	Delete         *bool  `yaml:"delete"`
	Engine         string `yaml:"engine"`
	Mode           string `yaml:"mode"`
	TTSEngine      string `yaml:"tts_engine"`
	STTEngine      string `yaml:"stt_engine"`

	MaxMessagesPerHour *int `yaml:"max_messages_per_hour"`

	AllowedPaths    []string `yaml:"allowed_paths"`
	BlockedPaths    []string `yaml:"blocked_paths"`
	BlockedCommands []string `yaml:"blocked_commands"`
	AllowedApps     []string `yaml:"allowed_apps"`
	AllowedDomains  []string `yaml:"allowed_domains"`
	BlockedDomains  []string `yaml:"blocked_domains"`

	QuietHours *QuietHours `yaml:"quiet_hours"`
}

// IsEnabled reports whether the section is declared and enabled.
func (s *Section) IsEnabled() bool {
	return s != nil && s.Enabled != nil && *s.Enabled
}

// clone returns a deep copy of the section.
func (s *Section) clone() *Section {
	if s == nil {
		return nil
	}
	cp := *s
	cloneBool := func(b *bool) *bool {
		if b == nil {
			return nil
		}
		v := *b
		return &v
	}
	cp.Enabled = cloneBool(s.Enabled)
	cp.Read = cloneBool(s.Read)
	cp.Write = cloneBool(s.Write)
	cp.Delete = cloneBool(s.Delete)
	if s.MaxMessagesPerHour != nil {
		v := *s.MaxMessagesPerHour
		cp.MaxMessagesPerHour = &v
	}
	cp.AllowedPaths = append([]string(nil), s.AllowedPaths...)
	cp.BlockedPaths = append([]string(nil), s.BlockedPaths...)
	cp.BlockedCommands = append([]string(nil), s.BlockedCommands...)
	cp.AllowedApps = append([]string(nil), s.AllowedApps...)
	cp.AllowedDomains = append([]string(nil), s.AllowedDomains...)
	cp.BlockedDomains = append([]string(nil), s.BlockedDomains...)
	if s.QuietHours != nil {
		qh := *s.QuietHours
		cp.QuietHours = &qh
	}
	return &cp
}

type document struct {
	Permissions map[string]*Section `yaml:"permissions"`
}

// Policy holds the validated snapshot of the permission document.
// Reload swaps the snapshot atomically; readers see old or new, never partial.
type Policy struct {
	mu       sync.RWMutex
	path     string
	sections map[string]*Section
}

// Load parses and validates the policy file at path.
func Load(path string) (*Policy, error) {
	sections, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return &Policy{path: path, sections: sections}, nil
}

func loadFile(path string) (map[string]*Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if doc.Permissions == nil {
		return nil, fmt.Errorf("policy: missing top-level permissions key")
	}

	// Expand ~ in path lists up front so the sandbox compares real prefixes.
	for _, sec := range doc.Permissions {
		if sec == nil {
			continue
		}
		for i, p := range sec.AllowedPaths {
			sec.AllowedPaths[i] = config.ExpandHome(p)
		}
		for i, p := range sec.BlockedPaths {
			sec.BlockedPaths[i] = config.ExpandHome(p)
		}
	}

	if err := validate(doc.Permissions); err != nil {
		return nil, err
	}
	return doc.Permissions, nil
}

// validate checks the schema and names every missing section and field.
func validate(sections map[string]*Section) error {
	var problems []string

	for _, name := range RequiredSections {
		sec, ok := sections[name]
		if !ok || sec == nil {
			problems = append(problems, fmt.Sprintf("missing section %q", name))
			continue
		}
		if sec.Enabled == nil {
			problems = append(problems, fmt.Sprintf("section %q: missing field %q", name, "enabled"))
		}
		for _, field := range requiredFields[name] {
			if !sectionHasField(sec, field) {
				problems = append(problems, fmt.Sprintf("section %q: missing field %q", name, field))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("policy validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

func sectionHasField(sec *Section, field string) bool {
	switch field {
	case "read":
		return sec.Read != nil
	case "write":
		return sec.Write != nil
	case "delete":
		return sec.Delete != nil
	case "engine":
		return sec.Engine != ""
	case "mode":
		return sec.Mode != ""
	case "tts_engine":
		return sec.TTSEngine != ""
	case "stt_engine":
		return sec.STTEngine != ""
	case "max_messages_per_hour":
		return sec.MaxMessagesPerHour != nil
	}
	return false
}

// Reload re-reads the policy from the original path. On validation failure
// the previous snapshot is retained and the error returned.
func (p *Policy) Reload() error {
	sections, err := loadFile(p.path)
	if err != nil {
		slog.Warn("policy reload failed, keeping previous snapshot", "path", p.path, "error", err)
		return err
	}

	p.mu.Lock()
	p.sections = sections
	p.mu.Unlock()

	slog.Info("policy reloaded", "path", p.path, "sections", len(sections))
	return nil
}

// Get returns a defensive copy of the named section, or nil if absent.
func (p *Policy) Get(name string) *Section {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sections[name].clone()
}

// Path returns the file the policy was loaded from.
func (p *Policy) Path() string { return p.path }
