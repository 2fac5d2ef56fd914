package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		ProjectDir: "~/.orion",
		UserName:   "default",
		Persona: "You are Orion, a thoughtful personal companion. You remember past " +
			"conversations, check in proactively, and keep replies warm and concise.",
		Providers: ProvidersConfig{
			Anthropic:  ProviderConfig{Model: "claude-sonnet-4-5-20250929"},
			OpenAI:     ProviderConfig{Model: "gpt-4o", APIBase: "https://api.openai.com/v1"},
			Gemini:     ProviderConfig{Model: "gemini-2.0-flash"},
			OpenRouter: ProviderConfig{Model: "anthropic/claude-sonnet-4.5", APIBase: "https://openrouter.ai/api/v1"},
			Groq:       ProviderConfig{Model: "llama-3.3-70b-versatile", APIBase: "https://api.groq.com/openai/v1"},
			Mistral:    ProviderConfig{Model: "mistral-large-latest", APIBase: "https://api.mistral.ai/v1"},
			Local:      LocalConfig{BaseURL: "http://localhost:11434", Model: "llama3.2"},
		},
		Database: DatabaseConfig{URL: "sqlite://orion.db"},
		Vector: VectorConfig{
			Collection:     "orion_memory",
			EmbedModel:     "text-embedding-3-small",
			EmbedCacheSize: 10000,
		},
		Daemon: DaemonConfig{
			IntervalSeconds: 60,
			TriggersPath:    "background/triggers.yaml",
		},
		Policy: PolicyConfig{Path: "permissions.yaml"},
		Context: ContextConfig{
			MaxTokens:     4000,
			HistoryLimit:  20,
			RecallTopK:    5,
			RecallMaxUsed: 3,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env are used.
func Load(path string) (*Config, error) {
	// Best-effort .env bootstrap so API keys can live next to the binary.
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("ANTHROPIC_API_KEY", &c.Providers.Anthropic.APIKey)
	envStr("OPENAI_API_KEY", &c.Providers.OpenAI.APIKey)
	envStr("GEMINI_API_KEY", &c.Providers.Gemini.APIKey)
	envStr("OPENROUTER_API_KEY", &c.Providers.OpenRouter.APIKey)
	envStr("GROQ_API_KEY", &c.Providers.Groq.APIKey)
	envStr("MISTRAL_API_KEY", &c.Providers.Mistral.APIKey)
	envStr("OLLAMA_BASE_URL", &c.Providers.Local.BaseURL)

	envStr("DATABASE_URL", &c.Database.URL)
	envStr("CHROMA_URL", &c.Vector.HostedURL)
	envStr("CHROMA_API_KEY", &c.Vector.HostedAPIKey)

	envStr("TELEGRAM_BOT_TOKEN", &c.Channels.Telegram.Token)
	envStr("TELEGRAM_CHAT_ID", &c.Channels.Telegram.ChatID)
	envStr("DISCORD_BOT_TOKEN", &c.Channels.Discord.Token)
	envStr("DISCORD_CHANNEL_ID", &c.Channels.Discord.ChannelID)

	// Auto-enable channels if credentials are provided via env
	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}

	envStr("ORION_PROJECT_DIR", &c.ProjectDir)
	envStr("ORION_USER", &c.UserName)
	envStr("ORION_POLICY_PATH", &c.Policy.Path)

	if v := os.Getenv("ORION_DAEMON_INTERVAL"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Daemon.IntervalSeconds = sec
		}
	}
}

// ProjectPath resolves a path relative to the expanded project dir.
// Absolute paths pass through untouched.
func (c *Config) ProjectPath(parts ...string) string {
	if len(parts) == 1 && filepath.IsAbs(parts[0]) {
		return parts[0]
	}
	return filepath.Join(append([]string{ExpandHome(c.ProjectDir)}, parts...)...)
}

// PolicyPath returns the absolute policy file path.
func (c *Config) PolicyPath() string {
	return c.ProjectPath(c.Policy.Path)
}

// TriggersPath returns the absolute trigger file path.
func (c *Config) TriggersPath() string {
	return c.ProjectPath(c.Daemon.TriggersPath)
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
