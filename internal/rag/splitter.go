package rag

import "strings"

const (
	chunkSize    = 512
	chunkOverlap = 50
)

// separators in descending preference. The empty string is the terminal
// fallback: split at the character level.
var separators = []string{"\n\n", "\n", ". ", " ", ""}

// splitText recursively splits text into chunks of at most chunkSize
// characters, preferring to break on the coarsest separator that keeps
// pieces under the limit, with roughly chunkOverlap characters carried
// between adjacent chunks.
func splitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= chunkSize {
		return []string{text}
	}
	return mergePieces(splitRecursive(text, 0))
}

func splitRecursive(text string, sepIdx int) []string {
	if len(text) <= chunkSize {
		return []string{text}
	}
	if sepIdx >= len(separators) || separators[sepIdx] == "" {
		return hardSplit(text)
	}

	sep := separators[sepIdx]
	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, sepIdx+1)
	}

	var pieces []string
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if len(part) > chunkSize {
			pieces = append(pieces, splitRecursive(part, sepIdx+1)...)
		} else if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}

func hardSplit(text string) []string {
	var out []string
	for len(text) > chunkSize {
		out = append(out, text[:chunkSize])
		text = text[chunkSize:]
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

// mergePieces greedily packs adjacent pieces into chunks of at most
// chunkSize characters. Each new chunk starts with the trailing pieces of
// the previous one, up to chunkOverlap characters.
func mergePieces(pieces []string) []string {
	var chunks []string
	var window []string
	length := 0

	emit := func() {
		// Every emitted window holds at least one piece the previous chunk
		// did not; repetitive text legitimately yields equal chunks.
		chunk := strings.TrimSpace(strings.Join(window, ""))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		// Retain trailing pieces for overlap with the next chunk.
		var kept []string
		keptLen := 0
		for i := len(window) - 1; i >= 0; i-- {
			if keptLen+len(window[i]) > chunkOverlap {
				break
			}
			kept = append([]string{window[i]}, kept...)
			keptLen += len(window[i])
		}
		window = kept
		length = keptLen
	}

	for _, piece := range pieces {
		if length+len(piece) > chunkSize && length > 0 {
			emit()
			// The retained overlap alone may still not leave room.
			if length+len(piece) > chunkSize {
				window = nil
				length = 0
			}
		}
		window = append(window, piece)
		length += len(piece)
	}
	if length > 0 {
		emit()
	}
	return chunks
}
