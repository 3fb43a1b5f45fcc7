// Package splitter partitions raw text into overlapping chunks sized for
// embedding.
//
// Chunk size and overlap are measured in bytes of UTF-8, not runes: the
// bound exists to keep chunks under the embedder's input budget, which is
// itself byte-denominated. Cuts never land inside a multi-byte rune, so
// multi-byte text may yield chunks somewhat under the configured size but
// every chunk is valid UTF-8.
//
// Chunks prefer to break at natural boundaries (paragraph, then sentence,
// then word), falling back to a hard cut only when a window contains
// none. Adjacent chunks share a configured overlap so semantic context is
// not severed at a boundary.
package splitter

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the default chunk size in bytes.
const DefaultChunkSize = 2000

// DefaultChunkOverlap is the default overlap between adjacent chunks,
// in bytes.
const DefaultChunkOverlap = 200

// separators are tried in order when looking for a cut point.
// Sentence separators keep the terminating punctuation inside the chunk.
var separators = []string{"\n\n", ". ", "! ", "? ", "\n", " "}

// Chunk is one bounded span of a source document.
// Immutable once produced.
type Chunk struct {
	Text      string
	SourceURL string
	Index     int
}

// Splitter deterministically partitions text into chunks.
// Safe for concurrent use; it holds no mutable state.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a Splitter. Non-positive sizes fall back to defaults and an
// overlap that would reach or exceed the chunk size is clamped to a
// quarter of it, so Split always makes forward progress.
func New(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split returns a lazy, finite, restartable sequence of chunk texts.
//
// Guarantees:
//   - every chunk is at most chunkSize bytes;
//   - a text no longer than chunkSize yields exactly one chunk;
//   - empty or all-whitespace input yields an empty sequence;
//   - with zero overlap, the chunks concatenate back to the input modulo
//     whitespace.
func (s *Splitter) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if strings.TrimSpace(text) == "" {
			return
		}
		if len(text) <= s.chunkSize {
			yield(strings.TrimSpace(text))
			return
		}

		n := len(text)
		start := 0
		for start < n {
			if n-start <= s.chunkSize {
				if last := strings.TrimSpace(text[start:]); last != "" {
					yield(last)
				}
				return
			}

			cut := s.cutPoint(text, start)
			if piece := strings.TrimSpace(text[start:cut]); piece != "" {
				if !yield(piece) {
					return
				}
			}

			next := alignRune(text, cut-s.chunkOverlap)
			if next <= start {
				next = cut
			}
			start = next
		}
	}
}

// Chunks returns the chunk sequence for one source document, tagging each
// chunk with the source URL and its position in the document.
func (s *Splitter) Chunks(sourceURL, text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		i := 0
		for piece := range s.Split(text) {
			if !yield(Chunk{Text: piece, SourceURL: sourceURL, Index: i}) {
				return
			}
			i++
		}
	}
}

// cutPoint finds the end of the chunk starting at start. It scans the
// window [start, start+chunkSize] for the latest occurrence of the highest-
// priority separator, falling back to a hard cut at the window edge.
// The returned offset is always strictly greater than start.
func (s *Splitter) cutPoint(text string, start int) int {
	window := text[start : start+s.chunkSize]
	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx > 0 {
			return start + idx + len(sep)
		}
	}
	// No natural boundary in the window; cut at the edge without
	// splitting a rune.
	cut := alignRune(text, start+s.chunkSize)
	if cut <= start {
		cut = start + s.chunkSize
	}
	return cut
}

// alignRune moves pos backwards to the nearest rune start.
func alignRune(text string, pos int) int {
	if pos < 0 {
		return 0
	}
	for pos > 0 && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	return pos
}
