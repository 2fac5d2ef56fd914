package vector

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	chromem "github.com/philippgille/chromem-go"
)

// chromemStore is the embedded backend, persisting under
// <project>/chroma_data/. Search embeds the query through the same embedder
// wired into the collection; the metadata filter is applied in-process.
type chromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	embedder   Embedder
}

// NewEmbedded opens (or creates) the embedded store.
func NewEmbedded(persistDir, collection string, embedder Embedder) (Store, error) {
	if collection == "" {
		collection = "orion_memory"
	}

	db, err := chromem.NewPersistentDB(filepath.Join(persistDir, "chromem.gob"), false)
	if err != nil {
		return nil, fmt.Errorf("open embedded vector db: %w", err)
	}

	embeddingFunc := func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}

	col, err := db.GetOrCreateCollection(collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	return &chromemStore{db: db, collection: col, embedder: embedder}, nil
}

func (s *chromemStore) Upsert(ctx context.Context, id, content string, metadata map[string]any) error {
	meta := FlattenMetadata(metadata)
	meta["text"] = content

	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: meta,
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", id, err)
	}
	return nil
}

func (s *chromemStore) Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}
	count := s.collection.Count()
	if count == 0 {
		return nil, nil
	}

	// Over-fetch so the in-process filter still yields topK hits, capped at
	// the collection size (chromem rejects nResults > count).
	fetch := topK
	if len(filter) > 0 {
		fetch = topK * 4
	}
	if fetch > count {
		fetch = count
	}

	hits, err := s.collection.Query(ctx, query, fetch, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	var results []Result
	for _, hit := range hits {
		if !matchesFilter(hit.Metadata, filter) {
			continue
		}
		results = append(results, Result{
			ID:       hit.ID,
			Score:    hit.Similarity,
			Metadata: hit.Metadata,
		})
		if len(results) == topK {
			break
		}
	}
	return results, nil
}

func (s *chromemStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	// Unknown ids are skipped, not errors.
	for _, id := range ids {
		if err := s.collection.Delete(ctx, nil, nil, id); err != nil {
			slog.Debug("vector delete skipped", "id", id, "error", err)
		}
	}
	return nil
}

func (s *chromemStore) Stats(_ context.Context) Stats {
	return Stats{Backend: "embedded", TotalVectors: s.collection.Count()}
}
