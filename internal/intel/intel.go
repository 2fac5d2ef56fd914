// Package intel learns from conversation history: recurring topics,
// time-of-day habits, task mixes, and request sequences. The learned
// patterns drive proactive suggestions, and per-trigger weights are
// adjusted by user feedback.
package intel

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/orion-companion/orion/internal/store"
)

const (
	defaultWindowDays = 30

	topTopics   = 20
	topTasks    = 10
	topKeywords = 30
	topSequences = 10

	maxSuggestions = 5
	defaultWeight  = 0.5
)

// Sequence is a merged pair of consecutive user requests.
type Sequence struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// Patterns is the learned behavioral profile, persisted to patterns.json.
type Patterns struct {
	Topics           map[string]int `json:"topics"`
	TaskTypes        map[string]int `json:"task_types"`
	TimePatterns     map[string]int `json:"time_patterns"`
	Keywords         map[string]int `json:"keywords"`
	Sequences        []Sequence     `json:"sequences"`
	EnginesUsed      map[string]int `json:"engines_used"`
	AnalyzedAt       string         `json:"analysis_timestamp"`
	MessagesAnalyzed int            `json:"messages_analyzed"`
}

// Suggestion is one proactive action candidate.
type Suggestion struct {
	Action      string  `json:"action"`
	Description string  `json:"description"`
	Trigger     string  `json:"trigger"`
	Confidence  float64 `json:"confidence"`
}

// Summary is the condensed user profile.
type Summary struct {
	UserID           string   `json:"user_id"`
	PreferredTime    string   `json:"preferred_time"`
	TopTopics        []string `json:"top_topics"`
	CommonTasks      []string `json:"common_tasks"`
	PreferredEngine  string   `json:"preferred_engine"`
	InteractionStyle string   `json:"interaction_style"`
	LastUpdated      string   `json:"last_updated"`
}

// patternsFile is the on-disk envelope for patterns.json.
type patternsFile struct {
	UserID   string   `json:"user_id"`
	Patterns Patterns `json:"patterns"`
}

// Intelligence persists learned patterns and trigger weights under a
// data directory.
type Intelligence struct {
	userID       string
	patternsPath string
	weightsPath  string

	mu       sync.Mutex
	patterns Patterns
	weights  map[string]float64
}

// New loads any previously saved patterns and weights from dataDir.
// Missing or corrupt files start the profile empty.
func New(dataDir, userID string) *Intelligence {
	in := &Intelligence{
		userID:       userID,
		patternsPath: filepath.Join(dataDir, "patterns.json"),
		weightsPath:  filepath.Join(dataDir, "trigger_weights.json"),
		weights:      map[string]float64{},
	}
	in.loadPatterns()
	in.loadWeights()
	return in
}

// AnalyzeHistory scans messages inside the window for recurring topics,
// keywords, task types, activity buckets, engine usage, and request
// sequences, then persists the refreshed profile. windowDays <= 0 selects
// the 30-day default.
func (in *Intelligence) AnalyzeHistory(messages []*store.Message, windowDays int) Patterns {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}
	cutoff := time.Now().AddDate(0, 0, -windowDays)

	topics := map[string]int{}
	tasks := map[string]int{}
	keywords := map[string]int{}
	engines := map[string]int{}
	buckets := map[string]int{"morning": 0, "afternoon": 0, "evening": 0, "night": 0}

	var recent []*store.Message
	for _, msg := range messages {
		if msg.Timestamp.IsZero() || msg.Timestamp.Before(cutoff) {
			continue
		}
		recent = append(recent, msg)
	}

	for _, msg := range recent {
		if msg.Role == store.RoleUser {
			countTopics(msg.Content, topics)
			countKeywords(msg.Content, keywords)
			classifyTask(msg.Content, tasks)
		}
		buckets[timePeriod(msg.Timestamp.Hour())]++
		if engine, ok := msg.Metadata["engine"].(string); ok && engine != "" {
			engines[engine]++
		}
	}

	p := Patterns{
		Topics:           topCounts(topics, topTopics),
		TaskTypes:        topCounts(tasks, topTasks),
		TimePatterns:     buckets,
		Keywords:         topCounts(keywords, topKeywords),
		Sequences:        detectSequences(recent, topSequences),
		EnginesUsed:      engines,
		AnalyzedAt:       time.Now().Format(time.RFC3339),
		MessagesAnalyzed: len(recent),
	}

	in.mu.Lock()
	in.patterns = p
	in.savePatterns()
	in.mu.Unlock()

	slog.Info("history analyzed",
		"user", in.userID,
		"messages", len(recent),
		"topics", len(p.Topics),
		"task_types", len(p.TaskTypes))
	return p
}

// SuggestActions combines time-of-day, context, and sequence candidates,
// scores each by its trigger weight, and returns the top five. hour < 0
// selects the current hour.
func (in *Intelligence) SuggestActions(currentContext string, hour int) []Suggestion {
	if hour < 0 {
		hour = time.Now().Hour()
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	var suggestions []Suggestion
	suggestions = append(suggestions, in.timeSuggestions(hour)...)
	if currentContext != "" {
		suggestions = append(suggestions, in.contextSuggestions(currentContext)...)
	}
	suggestions = append(suggestions, in.sequenceSuggestions()...)

	for i := range suggestions {
		suggestions[i].Confidence = in.weight(suggestions[i].Trigger)
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions
}

// UpdateWeight reinforces a trigger from its outcome: accepted +0.1,
// rejected -0.15, anything else -0.02. An explicit feedback score in
// [0,1] pulls the weight 30% toward it instead. The result is clamped
// to [0,1] and persisted.
func (in *Intelligence) UpdateWeight(trigger, outcome string, feedback *float64) float64 {
	in.mu.Lock()
	defer in.mu.Unlock()

	current := in.weight(trigger)

	var adjustment float64
	switch {
	case feedback != nil:
		adjustment = (*feedback - current) * 0.3
	case outcome == "accepted":
		adjustment = 0.1
	case outcome == "rejected":
		adjustment = -0.15
	default:
		adjustment = -0.02
	}

	updated := current + adjustment
	if updated < 0 {
		updated = 0
	}
	if updated > 1 {
		updated = 1
	}
	in.weights[trigger] = updated
	in.saveWeights()

	slog.Info("trigger weight updated",
		"trigger", trigger, "outcome", outcome,
		"from", fmt.Sprintf("%.2f", current), "to", fmt.Sprintf("%.2f", updated))
	return updated
}

// UserSummary condenses the current profile.
func (in *Intelligence) UserSummary() Summary {
	in.mu.Lock()
	defer in.mu.Unlock()

	return Summary{
		UserID:           in.userID,
		PreferredTime:    maxKey(in.patterns.TimePatterns, "unknown"),
		TopTopics:        topKeys(in.patterns.Topics, 5),
		CommonTasks:      topKeys(in.patterns.TaskTypes, 5),
		PreferredEngine:  maxKey(in.patterns.EnginesUsed, "auto"),
		InteractionStyle: interactionStyle(in.patterns.TaskTypes),
		LastUpdated:      time.Now().Format(time.RFC3339),
	}
}

// Patterns returns a copy of the current profile.
func (in *Intelligence) Patterns() Patterns {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.patterns
}

func (in *Intelligence) weight(trigger string) float64 {
	if w, ok := in.weights[trigger]; ok {
		return w
	}
	return defaultWeight
}

// timeSuggestions proposes a routine action when more than a quarter of
// activity lands in the current period.
func (in *Intelligence) timeSuggestions(hour int) []Suggestion {
	total := 0
	for _, n := range in.patterns.TimePatterns {
		total += n
	}
	if total == 0 {
		return nil
	}

	period := timePeriod(hour)
	if float64(in.patterns.TimePatterns[period])/float64(total) <= 0.25 {
		return nil
	}

	switch period {
	case "morning":
		return []Suggestion{{
			Action:      "morning_briefing",
			Description: "Start with a morning briefing",
			Trigger:     "morning_routine",
		}}
	case "afternoon":
		return []Suggestion{{
			Action:      "task_review",
			Description: "Review tasks and priorities",
			Trigger:     "afternoon_review",
		}}
	case "evening":
		return []Suggestion{{
			Action:      "daily_summary",
			Description: "Get a summary of today's activities",
			Trigger:     "evening_summary",
		}}
	}
	return nil
}

// contextSuggestions proposes continuing a recurring topic mentioned in
// the current context.
func (in *Intelligence) contextSuggestions(context string) []Suggestion {
	lower := strings.ToLower(context)

	var topics []string
	for topic, count := range in.patterns.Topics {
		if count > 2 && strings.Contains(lower, topic) {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)

	var out []Suggestion
	for _, topic := range topics {
		out = append(out, Suggestion{
			Action:      "continue_" + topic,
			Description: "Continue working on " + topic,
			Trigger:     "context_" + topic,
		})
	}
	return out
}

// sequenceSuggestions proposes the follow-up of repeated request pairs.
func (in *Intelligence) sequenceSuggestions() []Suggestion {
	var out []Suggestion
	for i, seq := range in.patterns.Sequences {
		if i >= 3 {
			break
		}
		if seq.Count < 2 {
			continue
		}
		out = append(out, Suggestion{
			Action:      "follow_sequence",
			Description: "Similar to: " + clip(seq.From, 30) + "...",
			Trigger:     "sequence_pattern",
		})
	}
	return out
}

// topicKeywords maps topic categories to their marker words.
var topicKeywords = map[string][]string{
	"coding":     {"code", "function", "debug", "implement", "python", "javascript", "api"},
	"research":   {"search", "find", "research", "look up", "investigate", "information"},
	"scheduling": {"schedule", "meeting", "calendar", "event", "appointment", "reminder"},
	"writing":    {"write", "draft", "document", "email", "report", "article"},
	"analysis":   {"analyze", "compare", "evaluate", "review", "assess", "data"},
	"learning":   {"learn", "tutorial", "explain", "teach", "understand", "how to"},
	"creative":   {"create", "design", "generate", "brainstorm", "idea", "creative"},
}

func countTopics(text string, topics map[string]int) {
	lower := strings.ToLower(text)
	for topic, markers := range topicKeywords {
		for _, kw := range markers {
			if strings.Contains(lower, kw) {
				topics[topic]++
				break
			}
		}
	}
}

var wordRE = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true,
	"will": true, "would": true, "could": true, "should": true, "may": true,
	"might": true, "must": true, "can": true, "shall": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "about": true, "into": true,
	"through": true, "during": true, "before": true, "after": true,
	"above": true, "below": true, "between": true, "out": true, "off": true,
	"over": true, "under": true, "again": true, "further": true,
	"then": true, "once": true, "here": true, "there": true, "when": true,
	"where": true, "why": true, "how": true, "all": true, "each": true,
	"few": true, "more": true, "most": true, "other": true, "some": true,
	"such": true, "no": true, "nor": true, "not": true, "only": true,
	"own": true, "same": true, "so": true, "than": true, "too": true,
	"very": true, "just": true, "and": true, "but": true, "if": true,
	"or": true, "because": true, "until": true, "while": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "me": true,
	"my": true, "myself": true, "we": true, "our": true, "ours": true,
	"you": true, "your": true, "yours": true, "he": true, "him": true,
	"his": true, "she": true, "her": true, "hers": true, "it": true,
	"its": true, "they": true, "them": true, "their": true, "what": true,
	"which": true, "who": true, "whom": true,
}

func countKeywords(text string, keywords map[string]int) {
	for _, word := range wordRE.FindAllString(strings.ToLower(text), -1) {
		if !stopWords[word] {
			keywords[word]++
		}
	}
}

// taskMarkers is ordered: the first matching category wins.
var taskMarkers = []struct {
	name    string
	markers []string
}{
	{"question", []string{"what", "how", "why", "when", "where", "who", "which"}},
	{"command", []string{"do", "create", "make", "build", "generate", "write"}},
	{"search", []string{"search", "find", "look up", "research", "google"}},
	{"analysis", []string{"analyze", "compare", "evaluate", "review"}},
	{"conversation", []string{"hello", "hi", "thanks", "okay", "sure", "please"}},
}

func classifyTask(text string, tasks map[string]int) {
	lower := strings.ToLower(text)
	for _, cat := range taskMarkers {
		for _, kw := range cat.markers {
			if strings.Contains(lower, kw) {
				tasks[cat.name]++
				return
			}
		}
	}
	tasks["other"]++
}

func timePeriod(hour int) string {
	switch {
	case hour >= 6 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 18:
		return "afternoon"
	case hour >= 18 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}

// detectSequences merges consecutive user-request pairs and ranks them by
// repetition.
func detectSequences(messages []*store.Message, limit int) []Sequence {
	var userMsgs []string
	for _, msg := range messages {
		if msg.Role == store.RoleUser && msg.Content != "" {
			userMsgs = append(userMsgs, clip(msg.Content, 50))
		}
	}

	index := map[[2]string]int{}
	var order []Sequence
	for i := 0; i+1 < len(userMsgs); i++ {
		key := [2]string{userMsgs[i], userMsgs[i+1]}
		if pos, ok := index[key]; ok {
			order[pos].Count++
			continue
		}
		index[key] = len(order)
		order = append(order, Sequence{From: key[0], To: key[1], Count: 1})
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].Count > order[j].Count })
	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

func interactionStyle(tasks map[string]int) string {
	total := 0
	for _, n := range tasks {
		total += n
	}
	if total == 0 {
		return "balanced"
	}
	switch {
	case float64(tasks["question"])/float64(total) > 0.5:
		return "inquisitive"
	case float64(tasks["command"])/float64(total) > 0.5:
		return "directive"
	default:
		return "balanced"
	}
}

// topCounts keeps the n highest counts. Ties break alphabetically.
func topCounts(counts map[string]int, n int) map[string]int {
	keys := topKeys(counts, n)
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[k] = counts[k]
	}
	return out
}

// topKeys returns up to n keys ordered by count descending, ties
// alphabetically.
func topKeys(counts map[string]int, n int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func maxKey(counts map[string]int, fallback string) string {
	best, bestN := fallback, 0
	keys := topKeys(counts, 1)
	if len(keys) > 0 && counts[keys[0]] > bestN {
		best = keys[0]
	}
	return best
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (in *Intelligence) loadPatterns() {
	data, err := os.ReadFile(in.patternsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("patterns load failed", "path", in.patternsPath, "error", err)
		}
		return
	}
	var pf patternsFile
	if err := json.Unmarshal(data, &pf); err != nil {
		slog.Warn("patterns file corrupt, starting empty", "path", in.patternsPath, "error", err)
		return
	}
	in.patterns = pf.Patterns
}

// savePatterns writes patterns.json. Callers hold the mutex.
func (in *Intelligence) savePatterns() {
	data, err := json.MarshalIndent(patternsFile{UserID: in.userID, Patterns: in.patterns}, "", "  ")
	if err != nil {
		slog.Error("patterns marshal failed", "error", err)
		return
	}
	if err := writeFile(in.patternsPath, data); err != nil {
		slog.Error("patterns save failed", "path", in.patternsPath, "error", err)
	}
}

func (in *Intelligence) loadWeights() {
	data, err := os.ReadFile(in.weightsPath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("trigger weights load failed", "path", in.weightsPath, "error", err)
		}
		return
	}
	weights := map[string]float64{}
	if err := json.Unmarshal(data, &weights); err != nil {
		slog.Warn("trigger weights corrupt, starting empty", "path", in.weightsPath, "error", err)
		return
	}
	in.weights = weights
}

// saveWeights writes trigger_weights.json. Callers hold the mutex.
func (in *Intelligence) saveWeights() {
	data, err := json.MarshalIndent(in.weights, "", "  ")
	if err != nil {
		slog.Error("trigger weights marshal failed", "error", err)
		return
	}
	if err := writeFile(in.weightsPath, data); err != nil {
		slog.Error("trigger weights save failed", "path", in.weightsPath, "error", err)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
