// Package chunk splits raw extracted text into overlapping, size-bounded
// segments suitable for embedding.
//
// Chunking is deterministic: the same input and parameters always produce
// the same chunk sequence, which keeps re-ingestion idempotent (point IDs
// derive from chunk index and content).
package chunk

import (
	"fmt"
	"strings"
)

// Default parameters. Sized so a chunk stays comfortably inside the
// embedding model's input limit.
const (
	DefaultSize    = 2000
	DefaultOverlap = 200
)

// Chunker splits text into chunks of at most Size characters, where
// consecutive chunks share exactly Overlap characters.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. size must be positive and overlap must be
// non-negative and strictly smaller than size, otherwise the window could
// never advance.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", overlap)
	}
	if overlap >= size {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than size %d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured maximum chunk length in characters.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap length in characters.
func (c *Chunker) Overlap() int { return c.overlap }

// Split returns the ordered chunk list for text. Empty or whitespace-only
// input yields zero chunks. Lengths are measured in runes so multi-byte
// text never splits inside a code point.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)

	for start := 0; ; start += step {
		end := start + c.size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}

	return chunks
}
