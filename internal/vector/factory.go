package vector

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/orion-companion/orion/internal/config"
)

// New selects and constructs the vector backend from config.
//
// Embedder order: hosted embedding when an OpenAI-like credential is
// present, otherwise local embedding via the Ollama backend. Store backend:
// hosted when a URL+key pair is configured, otherwise embedded persistence
// under <project>/chroma_data/.
func New(cfg *config.Config) (Store, Embedder, error) {
	var embedder Embedder
	var err error

	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		embedder, err = NewOpenAIEmbedder(EmbedderConfig{
			Model:     cfg.Vector.EmbedModel,
			APIKey:    key,
			BaseURL:   cfg.Providers.OpenAI.APIBase,
			CacheSize: cfg.Vector.EmbedCacheSize,
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		embedder = NewOllamaEmbedder(cfg.Providers.Local.BaseURL, "")
	}

	if cfg.Vector.HostedURL != "" && cfg.Vector.HostedAPIKey != "" {
		slog.Info("vector store: hosted backend", "url", cfg.Vector.HostedURL)
		return NewHosted(cfg.Vector.HostedURL, cfg.Vector.HostedAPIKey, cfg.Vector.Collection, embedder), embedder, nil
	}

	persistDir := cfg.ProjectPath("chroma_data")
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create vector dir: %w", err)
	}
	slog.Info("vector store: embedded backend", "dir", filepath.Clean(persistDir))

	store, err := NewEmbedded(persistDir, cfg.Vector.Collection, embedder)
	if err != nil {
		return nil, nil, err
	}
	return store, embedder, nil
}
