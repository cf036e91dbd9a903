package stages

import "strings"

const (
	defaultChunkSize    = 1500
	defaultChunkOverlap = 200
)

// chunkMarkdown splits markdown into overlapping character windows, breaking
// on a paragraph boundary near the window edge when one is available so a
// chunk doesn't split mid-sentence more than necessary. This is late
// chunking in the sense uses the term: the whole document is
// parsed first, then sliced, rather than chunked incrementally as it's read.
func chunkMarkdown(content string, size, overlap int) []string {
	if size <= 0 {
		size = defaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = defaultChunkOverlap
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= size {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < len(content) {
		end := start + size
		if end >= len(content) {
			chunks = append(chunks, strings.TrimSpace(content[start:]))
			break
		}

		cut := end
		if idx := strings.LastIndex(content[start:end], "\n\n"); idx > size/2 {
			cut = start + idx
		}
		chunks = append(chunks, strings.TrimSpace(content[start:cut]))

		next := cut - overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return chunks
}
