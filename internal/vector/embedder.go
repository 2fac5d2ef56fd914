package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Embedder generates text embeddings. Deterministic for a given model.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for up to 100 texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int
}

const embedBatchLimit = 100

// EmbedderConfig configures the hosted embedder.
type EmbedderConfig struct {
	Model     string // default text-embedding-3-small
	APIKey    string
	BaseURL   string // default https://api.openai.com/v1
	CacheSize int    // LRU entries, default 10000
}

// openaiEmbedder calls an OpenAI-compatible /embeddings endpoint with an LRU
// cache in front.
type openaiEmbedder struct {
	cfg    EmbedderConfig
	client *http.Client
	cache  *lru.Cache[string, []float32]
}

// NewOpenAIEmbedder creates the hosted embedder.
func NewOpenAIEmbedder(cfg EmbedderConfig) (Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = 10000
	}

	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embed cache: %w", err)
	}

	return &openaiEmbedder{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		cache:  cache,
	}, nil
}

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		return cached, nil
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *openaiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}
	if len(texts) > embedBatchLimit {
		return nil, fmt.Errorf("batch size exceeds limit: %d > %d", len(texts), embedBatchLimit)
	}

	results := make([][]float32, len(texts))
	var uncachedIdx []int
	var uncached []string
	for i, text := range texts {
		if cached, ok := e.cache.Get(text); ok {
			results[i] = cached
		} else {
			uncachedIdx = append(uncachedIdx, i)
			uncached = append(uncached, text)
		}
	}
	if len(uncached) == 0 {
		return results, nil
	}

	var vecs [][]float32
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		vecs, err = e.callAPI(ctx, uncached)
		if err == nil {
			break
		}
		if attempt < 2 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("embed batch after retries: %w", err)
	}

	for i, idx := range uncachedIdx {
		e.cache.Add(texts[idx], vecs[i])
		results[idx] = vecs[i]
	}
	return results, nil
}

// Dimensions returns 1536, the text-embedding-3-small width.
func (e *openaiEmbedder) Dimensions() int { return 1536 }

func (e *openaiEmbedder) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model": e.cfg.Model,
		"input": texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings API error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	vecs := make([][]float32, len(texts))
	for _, item := range apiResp.Data {
		if item.Index < 0 || item.Index >= len(vecs) {
			return nil, fmt.Errorf("invalid embedding index: %d", item.Index)
		}
		vecs[item.Index] = item.Embedding
	}
	return vecs, nil
}

// ollamaEmbedder embeds through a local Ollama instance. Used when no hosted
// embedding credential is configured.
type ollamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaEmbedder creates the local embedder.
func NewOllamaEmbedder(baseURL, model string) Embedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &ollamaEmbedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *ollamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{
		"model":  e.model,
		"prompt": text,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embeddings error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return apiResp.Embedding, nil
}

func (e *ollamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > embedBatchLimit {
		return nil, fmt.Errorf("batch size exceeds limit: %d > %d", len(texts), embedBatchLimit)
	}
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimensions returns 768, the nomic-embed-text width.
func (e *ollamaEmbedder) Dimensions() int { return 768 }
