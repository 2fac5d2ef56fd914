// Package triggers decides when the companion should proactively reach
// out. Triggers are declared in YAML and evaluated against a context
// snapshot each daemon cycle.
package triggers

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Trigger types.
const (
	TypeTimeBased  = "time_based"
	TypeInactivity = "inactivity"
	TypeSchedule   = "schedule"
	TypePattern    = "pattern"
	TypeKeyword    = "keyword"
	TypeCron       = "cron"
)

// Condition carries the per-type parameters. Unused fields stay zero.
type Condition struct {
	Hour    *int     `yaml:"hour,omitempty"`
	Minute  *int     `yaml:"minute,omitempty"`
	Days    []string `yaml:"days,omitempty"`
	Hours   float64  `yaml:"hours,omitempty"`
	Times   []string `yaml:"times,omitempty"`
	Pattern string   `yaml:"pattern_type,omitempty"`
	Day     string   `yaml:"day,omitempty"`

	Keywords []string `yaml:"keywords,omitempty"`
	Cron     string   `yaml:"cron,omitempty"`
}

// Trigger is one declared outreach rule.
type Trigger struct {
	ID              string     `yaml:"id"`
	Type            string     `yaml:"type"`
	Condition       Condition  `yaml:"condition"`
	MessageTemplate string     `yaml:"message_template"`
	LastFired       *time.Time `yaml:"last_fired,omitempty"`
	Enabled         bool       `yaml:"enabled"`
}

// Context is the evaluation snapshot for one cycle.
type Context struct {
	Now             time.Time
	LastMessageTime *time.Time
	RecentMessages  []string
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
	time.Sunday:    "sun",
}

// Evaluate reports whether the trigger fires for the given context.
func (t *Trigger) Evaluate(ctx Context) (bool, error) {
	switch t.Type {
	case TypeTimeBased:
		return t.evaluateTimeBased(ctx), nil
	case TypeInactivity:
		return t.evaluateInactivity(ctx), nil
	case TypeSchedule:
		return t.evaluateSchedule(ctx), nil
	case TypePattern:
		return t.evaluatePattern(ctx)
	case TypeKeyword:
		return t.evaluateKeyword(ctx), nil
	case TypeCron:
		return t.evaluateCron(ctx)
	default:
		return false, fmt.Errorf("unknown trigger type %q", t.Type)
	}
}

// coolingDown reports whether the trigger fired within the window.
func (t *Trigger) coolingDown(now time.Time, window time.Duration) bool {
	return t.LastFired != nil && now.Sub(*t.LastFired) < window
}

func (t *Trigger) evaluateTimeBased(ctx Context) bool {
	if t.Condition.Hour == nil || t.Condition.Minute == nil {
		return false
	}
	if ctx.Now.Hour() != *t.Condition.Hour || ctx.Now.Minute() != *t.Condition.Minute {
		return false
	}
	if len(t.Condition.Days) > 0 {
		today := weekdayNames[ctx.Now.Weekday()]
		matched := false
		for _, d := range t.Condition.Days {
			if strings.EqualFold(strings.TrimSpace(d), today) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	// 23h rather than 24h so a slow cycle cannot skip a day.
	return !t.coolingDown(ctx.Now, 23*time.Hour)
}

func (t *Trigger) evaluateInactivity(ctx Context) bool {
	if t.Condition.Hours <= 0 || ctx.LastMessageTime == nil {
		return false
	}
	window := time.Duration(t.Condition.Hours * float64(time.Hour))
	if ctx.Now.Sub(*ctx.LastMessageTime) < window {
		return false
	}
	return !t.coolingDown(ctx.Now, window)
}

func (t *Trigger) evaluateSchedule(ctx Context) bool {
	current := ctx.Now.Format("15:04")
	for _, raw := range t.Condition.Times {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			if ts.Format("15:04") == current {
				return !t.coolingDown(ctx.Now, time.Hour)
			}
			continue
		}
		if strings.TrimSpace(raw) == current {
			return !t.coolingDown(ctx.Now, time.Hour)
		}
	}
	return false
}

func (t *Trigger) evaluatePattern(ctx Context) (bool, error) {
	if t.Condition.Hour == nil {
		return false, fmt.Errorf("pattern trigger missing hour")
	}
	if ctx.Now.Hour() != *t.Condition.Hour || ctx.Now.Minute() != 0 {
		return false, nil
	}

	switch t.Condition.Pattern {
	case "daily":
		return !t.coolingDown(ctx.Now, 24*time.Hour), nil
	case "weekly":
		if !strings.EqualFold(t.Condition.Day, weekdayNames[ctx.Now.Weekday()]) {
			return false, nil
		}
		return !t.coolingDown(ctx.Now, 7*24*time.Hour), nil
	default:
		return false, fmt.Errorf("unknown pattern type %q", t.Condition.Pattern)
	}
}

func (t *Trigger) evaluateKeyword(ctx Context) bool {
	if len(t.Condition.Keywords) == 0 {
		return false
	}
	if t.coolingDown(ctx.Now, time.Hour) {
		return false
	}
	for _, msg := range ctx.RecentMessages {
		lowered := strings.ToLower(msg)
		for _, kw := range t.Condition.Keywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func (t *Trigger) evaluateCron(ctx Context) (bool, error) {
	if t.Condition.Cron == "" {
		return false, fmt.Errorf("cron trigger missing expression")
	}
	due, err := gronx.New().IsDue(t.Condition.Cron, ctx.Now)
	if err != nil {
		return false, fmt.Errorf("cron expression %q: %w", t.Condition.Cron, err)
	}
	return due && !t.coolingDown(ctx.Now, time.Hour), nil
}

// BuildMessage renders the trigger's template against the context.
// Placeholders: {time} 12-hour clock, {date} ISO date, {day} weekday name,
// {hours} whole hours since the last message (falling back to the
// configured inactivity window).
func (t *Trigger) BuildMessage(ctx Context) string {
	hours := int(t.Condition.Hours)
	if ctx.LastMessageTime != nil {
		hours = int(ctx.Now.Sub(*ctx.LastMessageTime).Hours())
	}

	replacer := strings.NewReplacer(
		"{time}", ctx.Now.Format("03:04 PM"),
		"{date}", ctx.Now.Format("2006-01-02"),
		"{day}", ctx.Now.Weekday().String(),
		"{hours}", fmt.Sprint(hours),
	)
	return replacer.Replace(t.MessageTemplate)
}
