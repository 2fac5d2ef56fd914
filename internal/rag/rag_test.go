package rag

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/orion-companion/orion/internal/vector"
)

type fakeVector struct {
	docs    map[string]map[string]string
	deleted []string
	hits    []vector.Result
}

func newFakeVector() *fakeVector {
	return &fakeVector{docs: make(map[string]map[string]string)}
}

func (f *fakeVector) Upsert(_ context.Context, id, content string, metadata map[string]any) error {
	meta := vector.FlattenMetadata(metadata)
	meta["text"] = content
	f.docs[id] = meta
	return nil
}

func (f *fakeVector) Search(_ context.Context, _ string, topK int, filter map[string]string) ([]vector.Result, error) {
	if f.hits != nil {
		if len(f.hits) > topK {
			return f.hits[:topK], nil
		}
		return f.hits, nil
	}
	var out []vector.Result
	for id, meta := range f.docs {
		match := true
		for k, v := range filter {
			if meta[k] != v {
				match = false
				break
			}
		}
		if match {
			out = append(out, vector.Result{ID: id, Score: 0.8, Metadata: meta})
		}
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (f *fakeVector) Delete(_ context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	for _, id := range ids {
		delete(f.docs, id)
	}
	return nil
}

func (f *fakeVector) Stats(_ context.Context) vector.Stats {
	return vector.Stats{Backend: "fake", TotalVectors: len(f.docs)}
}

func TestSplitShortText(t *testing.T) {
	chunks := splitText("just a short note")
	if len(chunks) != 1 || chunks[0] != "just a short note" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestSplitEmptyText(t *testing.T) {
	if got := splitText("   \n\t "); got != nil {
		t.Errorf("whitespace input produced chunks: %v", got)
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&b, "Paragraph %d has a few sentences. It talks about topic %d at some length.\n\n", i, i)
	}

	chunks := splitText(b.String())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > chunkSize {
			t.Errorf("chunk %d is %d chars, exceeds %d", i, len(c), chunkSize)
		}
	}
}

func TestSplitUnbrokenText(t *testing.T) {
	// No separators at all; falls through to character-level splitting.
	chunks := splitText(strings.Repeat("x", chunkSize*3))
	if len(chunks) < 3 {
		t.Fatalf("expected at least 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > chunkSize {
			t.Errorf("chunk %d too large: %d", i, len(c))
		}
	}
}

func TestIngestChunkIDsAndMetadata(t *testing.T) {
	vec := newFakeVector()
	r := New(vec)
	ctx := context.Background()

	var b strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&b, "Section %d covers its subject in reasonable depth over several lines.\n\n", i)
	}

	parentID, err := r.Ingest(ctx, b.String(), "notes.md", "alex", map[string]any{"tag": "work"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if parentID == "" {
		t.Fatal("parent id empty")
	}

	total := len(vec.docs)
	if total < 2 {
		t.Fatalf("expected multiple chunks, got %d", total)
	}
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("%s_chunk_%d", parentID, i)
		meta, ok := vec.docs[id]
		if !ok {
			t.Fatalf("missing chunk id %s", id)
		}
		if meta["source"] != "notes.md" || meta["user_id"] != "alex" || meta["tag"] != "work" {
			t.Errorf("chunk %d metadata wrong: %v", i, meta)
		}
		if meta["parent_doc_id"] != parentID {
			t.Errorf("chunk %d parent = %q", i, meta["parent_doc_id"])
		}
		if meta["chunk_index"] != fmt.Sprint(i) || meta["total_chunks"] != fmt.Sprint(total) {
			t.Errorf("chunk %d index/total wrong: %v", i, meta)
		}
	}
}

func TestIngestEmptyInput(t *testing.T) {
	vec := newFakeVector()
	r := New(vec)

	parentID, err := r.Ingest(context.Background(), "  \n ", "empty.txt", "alex", nil)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if parentID != "" {
		t.Errorf("parent id = %q, want empty", parentID)
	}
	if len(vec.docs) != 0 {
		t.Errorf("writes performed for empty input: %d", len(vec.docs))
	}
}

func TestBuildContextFormat(t *testing.T) {
	vec := newFakeVector()
	vec.hits = []vector.Result{
		{ID: "p_chunk_0", Score: 0.91, Metadata: map[string]string{
			"source": "guide.pdf#page=3", "chunk_index": "0", "text": "install the widget",
		}},
		{ID: "p_chunk_4", Score: 0.62, Metadata: map[string]string{
			"source": "guide.pdf#page=3", "chunk_index": "4", "text": "remove the cover",
		}},
	}
	r := New(vec)

	out, err := r.BuildContext(context.Background(), "how to install", "alex")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}

	blocks := strings.Split(out, "\n\n---\n\n")
	if len(blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(blocks))
	}
	want := "[1] Source: guide.pdf#page=3 (chunk 0) (relevance: 0.91)\ninstall the widget"
	if blocks[0] != want {
		t.Errorf("block 0:\n got %q\nwant %q", blocks[0], want)
	}
}

func TestBuildContextEmpty(t *testing.T) {
	r := New(newFakeVector())
	out, err := r.BuildContext(context.Background(), "anything", "alex")
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if out != "" {
		t.Errorf("expected empty context, got %q", out)
	}
}

func TestDeleteDocumentEnumeratesIDs(t *testing.T) {
	vec := newFakeVector()
	r := New(vec)
	ctx := context.Background()

	parentID, err := r.Ingest(ctx, strings.Repeat("content sentence. ", 100), "doc.txt", "alex", nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := r.DeleteDocument(ctx, parentID); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if len(vec.docs) != 0 {
		t.Errorf("chunks remain after delete: %d", len(vec.docs))
	}
	if len(vec.deleted) != MaxChunks {
		t.Errorf("delete batch = %d ids, want %d", len(vec.deleted), MaxChunks)
	}
}

func TestIngestFileUnsupportedDocx(t *testing.T) {
	r := New(newFakeVector())
	if _, err := r.IngestFile(context.Background(), "/tmp/report.docx", "alex"); err == nil {
		t.Error("expected error for docx input")
	}
}
