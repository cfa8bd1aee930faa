// Package chunker splits document text into overlapping chunks sized for
// embedding. Splitting is deterministic: the same text always yields the
// same chunk sequence, and chunk IDs are a pure function of the owning
// document ID and the chunk index, so re-indexing an unchanged document
// writes byte-identical rows.
package chunker

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// chunk IDs are UUIDv5 under a fixed namespace so they stay stable across
// processes and restarts.
var chunkNamespace = uuid.MustParse("9f2c1ad6-0b3e-4a57-9c44-52f1d1bd5a6e")

// ChunkID derives the stable ID for chunk index of a document.
func ChunkID(documentID string, index int) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+"#"+strconv.Itoa(index)))
}

type Options struct {
	ChunkSize    int // target chunk size in characters
	ChunkOverlap int // characters shared between adjacent chunks
}

func DefaultOptions() Options {
	return Options{ChunkSize: 1000, ChunkOverlap: 200}
}

type Chunk struct {
	Index   int
	Content string
	Start   int // rune offset in the source text
	End     int
}

// Split produces the ordered chunk sequence for a document's text. Overlap
// keeps boundary sentences present in both neighboring chunks.
func Split(text string, opts Options) []Chunk {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 1000
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = 0
	}
	if opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = opts.ChunkSize / 4
	}

	runes := []rune(text)
	var chunks []Chunk
	idx := 0

	step := opts.ChunkSize - opts.ChunkOverlap
	for start := 0; start < len(runes); start += step {
		end := start + opts.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		// Prefer breaking at a whitespace boundary near the end so words
		// are not severed; hard cut if none is close enough.
		if end < len(runes) {
			end = softBoundary(runes, start, end)
		}

		content := string(runes[start:end])
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, Chunk{
				Index:   idx,
				Content: content,
				Start:   start,
				End:     end,
			})
			idx++
		}

		if end == len(runes) {
			break
		}
		// Step is computed from the actual end so overlap stays fixed even
		// when the boundary moved.
		step = (end - start) - opts.ChunkOverlap
		if step <= 0 {
			step = end - start
		}
	}

	return chunks
}

// softBoundary walks back from end looking for whitespace within 15% of the
// chunk size.
func softBoundary(runes []rune, start, end int) int {
	limit := (end - start) * 15 / 100
	for i := end; i > end-limit && i > start; i-- {
		if isSpace(runes[i-1]) {
			return i
		}
	}
	return end
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// TokenEstimate approximates the token count of a chunk; retrieval only
// needs a rough budget, not an exact tokenizer.
func TokenEstimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
