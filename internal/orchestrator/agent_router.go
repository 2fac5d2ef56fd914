package orchestrator

import "strings"

// agentKeywords scores a task description against agent categories.
var agentKeywords = map[string][]string{
	"research": {"research", "investigate", "find out", "look up", "learn about"},
	"browsing": {"browse", "website", "url", "open page", "web"},
	"file":     {"file", "folder", "directory", "document", "save", "read"},
	"calendar": {"calendar", "schedule", "meeting", "appointment", "remind"},
	"system":   {"system", "cpu", "memory", "disk", "battery", "process"},
	"code":     {"code", "program", "script", "debug", "function", "compile"},
	"analysis": {"analyze", "analysis", "compare", "evaluate", "summarize", "explain"},
}

// RouteToAgent picks the agent category whose keywords best match the
// task. Zero matches fall back to "general".
func RouteToAgent(task string) string {
	lowered := strings.ToLower(task)

	best := "general"
	bestScore := 0
	for _, category := range []string{"research", "browsing", "file", "calendar", "system", "code", "analysis"} {
		score := 0
		for _, kw := range agentKeywords[category] {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		if score > bestScore {
			best = category
			bestScore = score
		}
	}
	return best
}
