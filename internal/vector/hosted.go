package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// hostedStore talks to a Chroma-style HTTP server. The query embedding is
// computed explicitly and the metadata filter is applied server-side via
// the where clause.
type hostedStore struct {
	baseURL    string
	apiKey     string
	collection string
	embedder   Embedder
	client     *http.Client

	mu           sync.Mutex
	collectionID string
}

// NewHosted creates the hosted store. The collection is resolved (and
// created if missing) on first use.
func NewHosted(baseURL, apiKey, collection string, embedder Embedder) Store {
	if collection == "" {
		collection = "orion_memory"
	}
	return &hostedStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		embedder:   embedder,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *hostedStore) Upsert(ctx context.Context, id, content string, metadata map[string]any) error {
	colID, err := s.resolveCollection(ctx)
	if err != nil {
		return err
	}

	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}

	meta := FlattenMetadata(metadata)
	meta["text"] = content

	body := map[string]any{
		"ids":        []string{id},
		"embeddings": [][]float32{vec},
		"metadatas":  []map[string]string{meta},
		"documents":  []string{content},
	}
	return s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/upsert", colID), body, nil)
}

func (s *hostedStore) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}
	colID, err := s.resolveCollection(ctx)
	if err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	body := map[string]any{
		"query_embeddings": [][]float32{vec},
		"n_results":        topK,
		"include":          []string{"metadatas", "distances"},
	}
	if len(filter) > 0 {
		where := make(map[string]any, len(filter))
		for k, v := range filter {
			where[k] = v
		}
		body["where"] = where
	}

	var resp struct {
		IDs       [][]string            `json:"ids"`
		Distances [][]float32           `json:"distances"`
		Metadatas [][]map[string]string `json:"metadatas"`
	}
	if err := s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/query", colID), body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}

	var results []Result
	for i, id := range resp.IDs[0] {
		r := Result{ID: id}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			// Server reports cosine distance; convert to similarity.
			r.Score = clampScore(1 - resp.Distances[0][i])
		}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			r.Metadata = resp.Metadatas[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

func clampScore(s float32) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func (s *hostedStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	colID, err := s.resolveCollection(ctx)
	if err != nil {
		return err
	}
	// Unknown ids are ignored by the server.
	return s.post(ctx, fmt.Sprintf("/api/v1/collections/%s/delete", colID), map[string]any{"ids": ids}, nil)
}

func (s *hostedStore) Stats(ctx context.Context) Stats {
	st := Stats{Backend: "hosted"}
	colID, err := s.resolveCollection(ctx)
	if err != nil {
		return st
	}

	req, err := http.NewRequestWithContext(ctx, "GET", s.baseURL+fmt.Sprintf("/api/v1/collections/%s/count", colID), nil)
	if err != nil {
		return st
	}
	s.setHeaders(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return st
	}
	defer resp.Body.Close()

	var count int
	if json.NewDecoder(resp.Body).Decode(&count) == nil {
		st.TotalVectors = count
	}
	return st
}

// resolveCollection gets or creates the named collection and caches its id.
func (s *hostedStore) resolveCollection(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionID != "" {
		return s.collectionID, nil
	}

	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]any{
		"name":          s.collection,
		"get_or_create": true,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
	}
	if err := s.post(ctx, "/api/v1/collections", body, &resp); err != nil {
		return "", fmt.Errorf("resolve collection: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("resolve collection: empty id for %q", s.collection)
	}
	s.collectionID = resp.ID
	return s.collectionID, nil
}

func (s *hostedStore) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	s.setHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("vector server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vector server %s: %d: %s", path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (s *hostedStore) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
}
