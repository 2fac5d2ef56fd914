// Package vector provides the semantic store: embed, upsert, filtered
// similarity search, and delete. Two backends exist — an embedded store
// persisting under chroma_data/ and a hosted HTTP variant — selected from
// config at startup.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Result is one similarity hit. Score is cosine similarity in [0,1]
// (1 = identical); backends that report distance convert before returning.
type Result struct {
	ID       string
	Score    float32
	Metadata map[string]string
}

// Stats describes the backend for diagnostics.
type Stats struct {
	Backend      string
	TotalVectors int
}

// Store is the vector persistence interface. Upsert is idempotent per id.
// Search embeds the query text with the store's embedder and applies the
// equality filter; the filter is applied server-side on the hosted backend
// and in-process on the embedded one.
type Store interface {
	Upsert(ctx context.Context, id, content string, metadata map[string]any) error
	Search(ctx context.Context, query string, topK int, filter map[string]string) ([]Result, error)
	Delete(ctx context.Context, ids []string) error
	Stats(ctx context.Context) Stats
}

// FlattenMetadata converts an arbitrary metadata map to the string-valued
// form backends store. Scalars render directly; nested values are serialized
// to JSON.
func FlattenMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			out[k] = val
		case bool:
			out[k] = strconv.FormatBool(val)
		case int:
			out[k] = strconv.Itoa(val)
		case int64:
			out[k] = strconv.FormatInt(val, 10)
		case float64:
			out[k] = strconv.FormatFloat(val, 'g', -1, 64)
		case float32:
			out[k] = strconv.FormatFloat(float64(val), 'g', -1, 32)
		case nil:
			out[k] = ""
		default:
			data, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprintf("%v", val)
				continue
			}
			out[k] = string(data)
		}
	}
	return out
}

// matchesFilter reports whether metadata satisfies every filter equality.
func matchesFilter(metadata map[string]string, filter map[string]string) bool {
	for k, want := range filter {
		if metadata[k] != want {
			return false
		}
	}
	return true
}
