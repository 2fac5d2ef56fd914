// Package daemon runs the proactive loop: each cycle it snapshots the
// user's recent activity, evaluates triggers, gates firings through the
// permission sandbox, dispatches messages, and follows up on waiting
// threads.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/orion-companion/orion/internal/channel"
	"github.com/orion-companion/orion/internal/memory"
	"github.com/orion-companion/orion/internal/policy"
	"github.com/orion-companion/orion/internal/sandbox"
	"github.com/orion-companion/orion/internal/store"
	"github.com/orion-companion/orion/internal/threads"
	"github.com/orion-companion/orion/internal/triggers"
)

const (
	stopJoinTimeout = 5 * time.Second
	confirmTimeout  = 30 * time.Second
)

// Health is the daemon's self-report.
type Health struct {
	Running         bool   `json:"running"`
	UptimeSeconds   int    `json:"uptime_seconds"`
	IntervalSeconds int    `json:"interval_seconds"`
	CycleCount      int    `json:"cycle_count"`
	LastTrigger     string `json:"last_trigger"`
	QuietHours      string `json:"quiet_hours"`
	ActiveThreads   int    `json:"active_threads"`
}

// Daemon owns the proactive loop for one user.
type Daemon struct {
	userID   string
	interval time.Duration

	memory   *memory.Memory
	triggers *triggers.Engine
	threads  *threads.Manager
	sandbox  *sandbox.Sandbox
	policy   *policy.Policy
	channel  channel.Channel

	mu          sync.Mutex
	running     bool
	startedAt   time.Time
	cycleCount  int
	lastTrigger string
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates the daemon. interval <= 0 selects the 60s default.
func New(userID string, interval time.Duration, mem *memory.Memory, trig *triggers.Engine, thr *threads.Manager, sb *sandbox.Sandbox, pol *policy.Policy, ch channel.Channel) *Daemon {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Daemon{
		userID:   userID,
		interval: interval,
		memory:   mem,
		triggers: trig,
		threads:  thr,
		sandbox:  sb,
		policy:   pol,
		channel:  ch,
	}
}

// Start launches the loop in the background. Starting a running daemon is
// a no-op.
func (d *Daemon) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})
	d.running = true
	d.startedAt = time.Now()

	go d.loop(loopCtx)
	slog.Info("daemon started", "interval", d.interval, "user", d.userID)
}

// Stop requests termination and joins the loop with a bounded wait.
func (d *Daemon) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		slog.Warn("daemon stop timed out, loop abandoned")
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	slog.Info("daemon stopped")
}

// Health reports loop status.
func (d *Daemon) Health(ctx context.Context) Health {
	d.mu.Lock()
	h := Health{
		Running:         d.running,
		IntervalSeconds: int(d.interval.Seconds()),
		CycleCount:      d.cycleCount,
		LastTrigger:     d.lastTrigger,
	}
	if d.running {
		h.UptimeSeconds = int(time.Since(d.startedAt).Seconds())
	}
	d.mu.Unlock()

	if qh := d.quietHours(); qh != nil {
		h.QuietHours = qh.Start + "-" + qh.End
	}
	if pending, err := d.threads.GetPendingThreads(ctx, d.userID); err == nil {
		h.ActiveThreads = len(pending)
	}
	return h
}

func (d *Daemon) loop(ctx context.Context) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

// runCycle executes one cycle, trapping any failure so the loop survives.
func (d *Daemon) runCycle(ctx context.Context) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("daemon cycle panicked", "panic", r)
		}
	}()

	snapshot, err := d.snapshot(ctx)
	if err != nil {
		slog.Warn("cycle skipped, snapshot failed", "error", err)
		return
	}

	firedCount := 0
	if d.inQuietHours(snapshot.Now) {
		slog.Debug("quiet hours, trigger firing suppressed")
	} else {
		firedCount = d.fireTriggers(ctx, snapshot)
	}

	followUps := d.followUpPass(ctx)

	d.mu.Lock()
	d.cycleCount++
	count, last := d.cycleCount, d.lastTrigger
	d.mu.Unlock()

	slog.Info("daemon cycle complete",
		"cycle", count,
		"duration", time.Since(started).Round(time.Millisecond),
		"fired", firedCount,
		"follow_ups", followUps,
		"last_trigger", last)
}

// snapshot gathers the evaluation context for this cycle.
func (d *Daemon) snapshot(ctx context.Context) (triggers.Context, error) {
	snap := triggers.Context{Now: time.Now()}

	recent, err := d.memory.GetHistory(ctx, d.userID, 5)
	if err != nil {
		return snap, fmt.Errorf("recent history: %w", err)
	}
	for _, msg := range recent {
		snap.RecentMessages = append(snap.RecentMessages, msg.Content)
	}
	if len(recent) > 0 {
		last := recent[len(recent)-1].Timestamp
		snap.LastMessageTime = &last
	}
	return snap, nil
}

// fireTriggers dispatches every fired trigger that passes the sandbox.
// Returns the number of messages actually sent.
func (d *Daemon) fireTriggers(ctx context.Context, snap triggers.Context) int {
	sent := 0
	for _, trigger := range d.triggers.GetFired(snap) {
		decision := d.sandbox.Check(sandbox.ActionProactive, map[string]string{
			"trigger_id":   trigger.ID,
			"trigger_type": trigger.Type,
		})
		if !decision.Allowed {
			slog.Info("proactive message denied", "trigger", trigger.ID, "reason", decision.Reason)
			continue
		}
		if decision.RequiresConfirm && !d.sandbox.RequestConfirm(ctx, sandbox.ActionProactive, map[string]string{
			"trigger_id": trigger.ID,
		}, confirmTimeout) {
			slog.Info("proactive message not confirmed", "trigger", trigger.ID)
			continue
		}

		thread, err := d.threads.OpenThread(ctx, d.userID, "Trigger: "+trigger.ID, map[string]any{
			"trigger_type": trigger.Type,
		})
		if err != nil {
			slog.Warn("thread open failed", "trigger", trigger.ID, "error", err)
		}

		text := trigger.BuildMessage(snap)
		if !d.channel.Send(ctx, d.channel.DefaultRecipient(), text) {
			slog.Warn("proactive send failed", "trigger", trigger.ID)
			continue
		}

		// Delivered: the thread now waits on the user's reply, which arms
		// the follow-up pass.
		if thread != nil {
			if err := d.threads.UpdateState(ctx, thread.ID, store.ThreadWaiting); err != nil {
				slog.Warn("thread wait transition failed", "thread", thread.ID, "error", err)
			}
		}

		if err := d.triggers.MarkFired(ctx, trigger.ID, d.userID); err != nil {
			slog.Warn("mark fired failed", "trigger", trigger.ID, "error", err)
		}
		d.mu.Lock()
		d.lastTrigger = trigger.ID
		d.mu.Unlock()
		sent++
	}
	return sent
}

// followUpPass nudges waiting threads that have gone quiet for an hour.
// Runs even during quiet hours.
func (d *Daemon) followUpPass(ctx context.Context) int {
	pending, err := d.threads.GetPendingThreads(ctx, d.userID)
	if err != nil {
		slog.Warn("follow-up pass skipped", "error", err)
		return 0
	}

	sent := 0
	for _, thread := range pending {
		if thread.State != store.ThreadWaiting {
			continue
		}
		due, err := d.threads.ShouldFollowUp(ctx, thread.ID)
		if err != nil || !due {
			continue
		}

		text := "Just following up on my earlier message — no rush, whenever you have a moment."
		if d.channel.Send(ctx, d.channel.DefaultRecipient(), text) {
			if err := d.threads.UpdateState(ctx, thread.ID, store.ThreadOpen); err != nil {
				slog.Warn("follow-up state update failed", "thread", thread.ID, "error", err)
			}
			sent++
		}
	}
	return sent
}

func (d *Daemon) quietHours() *policy.QuietHours {
	sec := d.policy.Get("proactive")
	if sec == nil {
		return nil
	}
	return sec.QuietHours
}

// inQuietHours implements the wrap-around interval: start <= end means
// [start, end); start > end spans midnight.
func (d *Daemon) inQuietHours(now time.Time) bool {
	qh := d.quietHours()
	if qh == nil {
		return false
	}

	start, err1 := parseClock(qh.Start)
	end, err2 := parseClock(qh.End)
	if err1 != nil || err2 != nil {
		slog.Warn("invalid quiet_hours, ignoring", "start", qh.Start, "end", qh.End)
		return false
	}

	minute := now.Hour()*60 + now.Minute()
	if start <= end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
