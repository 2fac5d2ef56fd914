// Package rag ingests documents into the vector store as overlapping
// chunks and retrieves them for context building.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/orion-companion/orion/internal/vector"
)

// MaxChunks bounds a single document. Deletion enumerates ids up to this
// bound, so documents may not exceed it.
const MaxChunks = 500

// Hit is one retrieved chunk.
type Hit struct {
	Text     string
	Score    float32
	Metadata map[string]string
}

// Ingestor stores and retrieves document chunks.
type Ingestor struct {
	vectors vector.Store
}

// New creates an Ingestor over the given vector store.
func New(vec vector.Store) *Ingestor {
	return &Ingestor{vectors: vec}
}

// Ingest splits text into chunks and upserts them under a fresh parent id.
// Chunk ids are deterministic: {parent}_chunk_{i}. Empty or whitespace
// input returns "" without writing anything.
func (r *Ingestor) Ingest(ctx context.Context, text, source, userID string, metadata map[string]any) (string, error) {
	chunks := splitText(text)
	if len(chunks) == 0 {
		return "", nil
	}
	if len(chunks) > MaxChunks {
		return "", fmt.Errorf("document too large: %d chunks exceeds limit of %d", len(chunks), MaxChunks)
	}

	parentID := uuid.Must(uuid.NewV7()).String()
	for i, chunk := range chunks {
		meta := map[string]any{
			"source":        source,
			"user_id":       userID,
			"parent_doc_id": parentID,
			"total_chunks":  len(chunks),
			"chunk_index":   i,
		}
		for k, v := range metadata {
			if _, taken := meta[k]; !taken {
				meta[k] = v
			}
		}

		id := chunkID(parentID, i)
		if err := r.vectors.Upsert(ctx, id, chunk, meta); err != nil {
			return "", fmt.Errorf("upsert chunk %d/%d: %w", i, len(chunks), err)
		}
	}

	slog.Info("document ingested", "source", source, "chunks", len(chunks), "parent_id", parentID)
	return parentID, nil
}

// IngestFile ingests a file, dispatching on extension. PDFs yield one
// parent document per page; .txt, .md, and unknown extensions are treated
// as plain text. Returns the parent ids of the ingested documents.
func (r *Ingestor) IngestFile(ctx context.Context, path, userID string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return r.ingestPDF(ctx, path, userID)
	case ".docx":
		return nil, fmt.Errorf("docx extraction is not supported; convert %s to text first", filepath.Base(path))
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		parentID, err := r.Ingest(ctx, string(data), filepath.Base(path), userID, nil)
		if err != nil {
			return nil, err
		}
		if parentID == "" {
			return nil, nil
		}
		return []string{parentID}, nil
	}
}

// Query retrieves the topK chunks most relevant to the question, scoped to
// the user.
func (r *Ingestor) Query(ctx context.Context, question, userID string, topK int) ([]Hit, error) {
	results, err := r.vectors.Search(ctx, question, topK, map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("rag query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{
			Text:     res.Metadata["text"],
			Score:    res.Score,
			Metadata: res.Metadata,
		})
	}
	return hits, nil
}

// BuildContext formats the top 5 hits for inclusion in a prompt. Returns
// "" when nothing relevant is stored.
func (r *Ingestor) BuildContext(ctx context.Context, question, userID string) (string, error) {
	hits, err := r.Query(ctx, question, userID, 5)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}

	blocks := make([]string, 0, len(hits))
	for i, hit := range hits {
		blocks = append(blocks, fmt.Sprintf("[%d] Source: %s (chunk %s) (relevance: %.2f)\n%s",
			i+1, hit.Metadata["source"], hit.Metadata["chunk_index"], hit.Score, hit.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n"), nil
}

// DeleteDocument removes every chunk of a document. Ids are enumerated
// deterministically up to MaxChunks; the vector store ignores unknown ids,
// so over-generation is harmless.
func (r *Ingestor) DeleteDocument(ctx context.Context, parentID string) error {
	ids := make([]string, MaxChunks)
	for i := range ids {
		ids[i] = chunkID(parentID, i)
	}
	if err := r.vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete document %s: %w", parentID, err)
	}
	return nil
}

func chunkID(parentID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", parentID, i)
}
