package config

// Config is the root runtime configuration. Loaded from a JSON5 file,
// then overlaid with environment variables (env wins).
type Config struct {
	ProjectDir string          `json:"project_dir"` // root for .orion/, chroma_data/, data/, logs/
	Persona    string          `json:"persona"`     // system prompt for the companion
	UserName   string          `json:"user_name"`   // default local user
	Providers  ProvidersConfig `json:"providers"`
	Database   DatabaseConfig  `json:"database"`
	Vector     VectorConfig    `json:"vector"`
	Channels   ChannelsConfig  `json:"channels"`
	Daemon     DaemonConfig    `json:"daemon"`
	Policy     PolicyConfig    `json:"policy"`
	Context    ContextConfig   `json:"context"`
}

// ProvidersConfig holds per-provider credentials and endpoints.
// API keys are normally supplied via env vars, not the config file.
type ProvidersConfig struct {
	Anthropic  ProviderConfig `json:"anthropic"`
	OpenAI     ProviderConfig `json:"openai"`
	Gemini     ProviderConfig `json:"gemini"`
	OpenRouter ProviderConfig `json:"openrouter"`
	Groq       ProviderConfig `json:"groq"`
	Mistral    ProviderConfig `json:"mistral"`
	Local      LocalConfig    `json:"local"`
}

// ProviderConfig configures a single hosted LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	Model   string `json:"model"`
	APIBase string `json:"api_base"`
}

// LocalConfig configures the Ollama-compatible local backend.
type LocalConfig struct {
	BaseURL string `json:"base_url"`
	Model   string `json:"model"`
}

// DatabaseConfig selects the relational backend by URL scheme:
// sqlite://path or file:path for SQLite, postgres:// for Postgres.
type DatabaseConfig struct {
	URL string `json:"url"`
}

// VectorConfig selects the vector backend. When HostedURL and HostedAPIKey
// are both set the hosted variant is used; otherwise the embedded store
// persists under <project_dir>/chroma_data/.
type VectorConfig struct {
	HostedURL      string `json:"hosted_url"`
	HostedAPIKey   string `json:"hosted_api_key"`
	Collection     string `json:"collection"`
	EmbedModel     string `json:"embed_model"`
	EmbedCacheSize int    `json:"embed_cache_size"`
}

// ChannelsConfig holds messaging channel settings.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// TelegramConfig configures the primary Telegram channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	ChatID  string `json:"chat_id"` // default recipient for proactive messages
}

// DiscordConfig configures the secondary Discord channel.
type DiscordConfig struct {
	Enabled   bool   `json:"enabled"`
	Token     string `json:"token"`
	ChannelID string `json:"channel_id"`
}

// DaemonConfig configures the proactive background loop.
type DaemonConfig struct {
	IntervalSeconds int    `json:"interval_seconds"`
	TriggersPath    string `json:"triggers_path"`
}

// PolicyConfig points at the permission policy document.
type PolicyConfig struct {
	Path string `json:"path"`
}

// ContextConfig bounds context assembly.
type ContextConfig struct {
	MaxTokens     int `json:"max_tokens"`
	HistoryLimit  int `json:"history_limit"`
	RecallTopK    int `json:"recall_top_k"`
	RecallMaxUsed int `json:"recall_max_used"`
}
