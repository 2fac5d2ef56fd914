package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ingestPDF extracts each page and ingests it as its own parent document,
// so page-level provenance survives into chunk metadata.
func (r *Ingestor) ingestPDF(ctx context.Context, path, userID string) ([]string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	base := filepath.Base(path)
	var parents []string
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", pageNum, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		source := fmt.Sprintf("%s#page=%d", base, pageNum)
		parentID, err := r.Ingest(ctx, text, source, userID, map[string]any{"page": pageNum})
		if err != nil {
			return nil, err
		}
		if parentID != "" {
			parents = append(parents, parentID)
		}
	}
	return parents, nil
}
