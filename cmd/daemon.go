package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/orion-companion/orion/internal/daemon"
	"github.com/orion-companion/orion/internal/policy"
	"github.com/orion-companion/orion/internal/sandbox"
	"github.com/orion-companion/orion/internal/threads"
	"github.com/orion-companion/orion/internal/triggers"
)

// defaultPolicyYAML is written on first run so the daemon starts with a
// conservative, reviewable permission document.
const defaultPolicyYAML = `permissions:
  browsing:
    enabled: false
  search:
    enabled: true
    engine: duckduckgo
  file_system:
    enabled: true
    read: true
    write: false
    delete: false
  terminal:
    enabled: false
  app_control:
    enabled: false
  input_control:
    enabled: false
  calendar:
    enabled: false
    read: false
    write: false
  system_info:
    enabled: true
  camera:
    enabled: false
    mode: photo
  voice:
    enabled: false
    tts_engine: system
    stt_engine: whisper
  proactive:
    enabled: true
    max_messages_per_hour: 3
    quiet_hours:
      start: "22:00"
      end: "08:00"
`

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the proactive background loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon()
		},
	}
}

func runDaemon() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	pol, err := loadOrInitPolicy(a.cfg.PolicyPath())
	if err != nil {
		return err
	}

	ch, err := buildChannel(a.cfg)
	if err != nil {
		return err
	}

	trig, err := triggers.NewEngine(a.cfg.TriggersPath(), a.store)
	if err != nil {
		return fmt.Errorf("load triggers: %w", err)
	}

	thr := threads.New(a.store)
	sb := sandbox.New(pol, ch, ch.DefaultRecipient())

	d := daemon.New(
		a.cfg.UserName,
		time.Duration(a.cfg.Daemon.IntervalSeconds)*time.Second,
		a.memory, trig, thr, sb, pol, ch,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := pol.Watch(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	d.Start(ctx)
	slog.Info("orion daemon running", "user", a.cfg.UserName, "channel", ch.Name())

	<-ctx.Done()
	d.Stop()
	if err := g.Wait(); err != nil {
		slog.Warn("background task exited", "error", err)
	}
	return nil
}

// loadOrInitPolicy loads the policy document, writing the default one first
// when the file does not exist.
func loadOrInitPolicy(path string) (*policy.Policy, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create policy dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultPolicyYAML), 0o644); err != nil {
			return nil, fmt.Errorf("write default policy: %w", err)
		}
		slog.Info("default policy written", "path", path)
	}
	return policy.Load(path)
}
