// Package sandbox rules on every tagged system action against the permission
// policy, and runs the out-of-band confirmation round-trip when a section
// demands it. All failure paths deny.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/orion-companion/orion/internal/config"
	"github.com/orion-companion/orion/internal/policy"
)

// Action tags one effectful operation.
type Action string

const (
	ActionFileRead        Action = "file.read"
	ActionFileWrite       Action = "file.write"
	ActionFileDelete      Action = "file.delete"
	ActionTerminalRun     Action = "terminal.run"
	ActionAppOpen         Action = "app.open"
	ActionInputControl    Action = "input.control"
	ActionCalendarRead    Action = "calendar.read"
	ActionCalendarWrite   Action = "calendar.write"
	ActionBrowserNavigate Action = "browser.navigate"
	ActionBrowserSearch   Action = "browser.search"
	ActionSystemInfo      Action = "system.info"
	ActionProactive       Action = "proactive.message"
)

// actionSections maps each action to its policy section.
var actionSections = map[Action]string{
	ActionFileRead:        "file_system",
	ActionFileWrite:       "file_system",
	ActionFileDelete:      "file_system",
	ActionTerminalRun:     "terminal",
	ActionAppOpen:         "app_control",
	ActionInputControl:    "input_control",
	ActionCalendarRead:    "calendar",
	ActionCalendarWrite:   "calendar",
	ActionBrowserNavigate: "browsing",
	ActionBrowserSearch:   "search",
	ActionSystemInfo:      "system_info",
	ActionProactive:       "proactive",
}

// Decision is the outcome of a sandbox check.
type Decision struct {
	Allowed         bool
	RequiresConfirm bool
	Reason          string
	Action          Action
}

// Confirmer performs the yes/no confirmation round-trip.
type Confirmer interface {
	SendAndAwaitReply(ctx context.Context, recipient, text string, timeout time.Duration) (string, bool)
}

// Sandbox evaluates actions against the live policy snapshot.
type Sandbox struct {
	policy    *policy.Policy
	confirmer Confirmer
	recipient string
}

// New creates a sandbox. confirmer may be nil, in which case every
// confirmation request is denied.
func New(p *policy.Policy, confirmer Confirmer, recipient string) *Sandbox {
	return &Sandbox{policy: p, confirmer: confirmer, recipient: recipient}
}

// Check decides whether the action may proceed. Unknown actions, disabled
// sections, and rule violations all deny. The decision is a pure function of
// the current policy snapshot, the action, and the details.
func (s *Sandbox) Check(action Action, details map[string]string) Decision {
	d := s.evaluate(action, details)
	slog.Info("sandbox check",
		"action", string(action),
		"details", details,
		"allowed", d.Allowed,
		"requires_confirm", d.RequiresConfirm,
		"reason", d.Reason,
	)
	return d
}

func (s *Sandbox) evaluate(action Action, details map[string]string) Decision {
	deny := func(reason string) Decision {
		return Decision{Allowed: false, Reason: reason, Action: action}
	}

	sectionName, ok := actionSections[action]
	if !ok {
		return deny(fmt.Sprintf("unknown action %q", action))
	}

	sec := s.policy.Get(sectionName)
	if sec == nil {
		return deny(fmt.Sprintf("section %q not present in policy", sectionName))
	}
	if !sec.IsEnabled() {
		return deny(fmt.Sprintf("section %q disabled", sectionName))
	}

	switch action {
	case ActionFileRead, ActionFileWrite, ActionFileDelete:
		flag := sec.Read
		flagName := "read"
		switch action {
		case ActionFileWrite:
			flag, flagName = sec.Write, "write"
		case ActionFileDelete:
			flag, flagName = sec.Delete, "delete"
		}
		if flag == nil || !*flag {
			return deny(fmt.Sprintf("file_system.%s not permitted", flagName))
		}
		if path := details["path"]; path != "" {
			expanded := config.ExpandHome(path)
			for _, blocked := range sec.BlockedPaths {
				if strings.HasPrefix(expanded, blocked) {
					return deny(fmt.Sprintf("path %q matches blocked_paths entry %q", path, blocked))
				}
			}
			if len(sec.AllowedPaths) > 0 {
				allowed := false
				for _, p := range sec.AllowedPaths {
					if strings.HasPrefix(expanded, p) {
						allowed = true
						break
					}
				}
				if !allowed {
					return deny(fmt.Sprintf("path %q not under any allowed_paths entry", path))
				}
			}
		}

	case ActionTerminalRun:
		command := details["command"]
		for _, blocked := range sec.BlockedCommands {
			if strings.Contains(command, blocked) {
				return deny(fmt.Sprintf("command contains blocked_commands entry %q", blocked))
			}
		}

	case ActionAppOpen:
		if len(sec.AllowedApps) > 0 {
			app := strings.ToLower(details["app"])
			allowed := false
			for _, a := range sec.AllowedApps {
				if strings.ToLower(a) == app {
					allowed = true
					break
				}
			}
			if !allowed {
				return deny(fmt.Sprintf("app %q not in allowed_apps", details["app"]))
			}
		}

	case ActionCalendarRead:
		if sec.Read == nil || !*sec.Read {
			return deny("calendar.read not permitted")
		}
	case ActionCalendarWrite:
		if sec.Write == nil || !*sec.Write {
			return deny("calendar.write not permitted")
		}

	case ActionBrowserNavigate:
		url := details["url"]
		for _, blocked := range sec.BlockedDomains {
			if strings.Contains(url, blocked) {
				return deny(fmt.Sprintf("url matches blocked_domains entry %q", blocked))
			}
		}
		if len(sec.AllowedDomains) > 0 {
			allowed := false
			for _, domain := range sec.AllowedDomains {
				if strings.Contains(url, domain) {
					allowed = true
					break
				}
			}
			if !allowed {
				return deny(fmt.Sprintf("url %q not in allowed_domains", url))
			}
		}
	}

	return Decision{
		Allowed:         true,
		RequiresConfirm: sec.RequireConfirm,
		Reason:          "permitted",
		Action:          action,
	}
}

// RequestConfirm asks the user over the messaging channel and blocks for the
// reply. Anything other than an explicit "yes" within the timeout — "no",
// silence, transport failure, missing channel — is a denial.
func (s *Sandbox) RequestConfirm(ctx context.Context, action Action, details map[string]string, timeout time.Duration) bool {
	granted := false
	defer func() {
		slog.Info("sandbox confirm",
			"action", string(action),
			"details", details,
			"granted", granted,
		)
	}()

	if s.confirmer == nil || s.recipient == "" {
		return false
	}

	reply, ok := s.confirmer.SendAndAwaitReply(ctx, s.recipient, renderConfirmPrompt(action, details), timeout)
	if !ok {
		return false
	}
	granted = reply == "yes"
	return granted
}

// renderConfirmPrompt builds the Markdown confirmation message.
func renderConfirmPrompt(action Action, details map[string]string) string {
	var b strings.Builder
	b.WriteString("⚠️ *Permission Request*\n\n")
	b.WriteString(fmt.Sprintf("Orion wants to perform: `%s`\n", action))

	if len(details) > 0 {
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf("• %s: `%s`\n", k, details[k]))
		}
	}

	b.WriteString("\nReply *yes* to allow or *no* to deny.")
	return b.String()
}
