package cmd

import (
	"fmt"

	"github.com/orion-companion/orion/internal/assembler"
	"github.com/orion-companion/orion/internal/auth"
	"github.com/orion-companion/orion/internal/channel"
	"github.com/orion-companion/orion/internal/config"
	"github.com/orion-companion/orion/internal/memory"
	"github.com/orion-companion/orion/internal/orchestrator"
	"github.com/orion-companion/orion/internal/rag"
	"github.com/orion-companion/orion/internal/store/sqldb"
	"github.com/orion-companion/orion/internal/vector"
)

// app bundles the core runtime wiring shared by commands. Channel, policy,
// sandbox, and triggers are daemon-only and wired in cmd/daemon.go.
type app struct {
	cfg     *config.Config
	store   *sqldb.Store
	vectors vector.Store
	memory  *memory.Memory
	rag     *rag.Ingestor
	broker  *auth.Broker
	orch    *orchestrator.Orchestrator
	asm     *assembler.Assembler
}

func newApp() (*app, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}

	st, err := sqldb.Open(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	vectors, _, err := vector.New(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	mem := memory.New(st, vectors)
	ingestor := rag.New(vectors)
	broker := auth.New(config.ExpandHome(cfg.ProjectDir), cfg.Providers.Local.BaseURL)
	orch := orchestrator.New(cfg, broker)
	asm := assembler.New(cfg.Persona, mem, ingestor, cfg.Context.MaxTokens)

	return &app{
		cfg:     cfg,
		store:   st,
		vectors: vectors,
		memory:  mem,
		rag:     ingestor,
		broker:  broker,
		orch:    orch,
		asm:     asm,
	}, nil
}

func (a *app) Close() {
	a.store.Close()
}

// buildChannel constructs the configured outbound channel, Telegram first.
func buildChannel(cfg *config.Config) (channel.Channel, error) {
	if cfg.Channels.Telegram.Enabled {
		return channel.NewTelegram(cfg.Channels.Telegram)
	}
	if cfg.Channels.Discord.Enabled {
		return channel.NewDiscord(cfg.Channels.Discord)
	}
	return nil, fmt.Errorf("no channel configured: set TELEGRAM_BOT_TOKEN or DISCORD_BOT_TOKEN")
}
