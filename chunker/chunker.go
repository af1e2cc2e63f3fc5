// Package chunker splits parser fragments into overlapping, bounded-size
// text windows suitable for embedding and retrieval.
package chunker

import (
	"strconv"
	"strings"

	"github.com/regdocs/ragcore/parser"
)

// Config controls chunking behaviour.
type Config struct {
	ChunkSize int // target characters per chunk
	Overlap   int // characters of trailing context carried into the next chunk
}

// DefaultConfig matches the spec's chunk_size ~= 800, overlap ~= 50.
func DefaultConfig() Config {
	return Config{ChunkSize: 800, Overlap: 50}
}

// Chunk is one sub-fragment ready for embedding: fragment metadata is
// copied verbatim except chunk_index, which is renumbered per document.
type Chunk struct {
	Text     string
	Metadata map[string]string
}

// Chunker splits fragment text on paragraph, then sentence, then
// whitespace boundaries, never inside a whitespace-free token.
type Chunker struct {
	cfg Config
}

// New returns a Chunker; zero-value fields fall back to DefaultConfig.
func New(cfg Config) *Chunker {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = def.Overlap
	}
	return &Chunker{cfg: cfg}
}

// ChunkFragments splits every fragment of a document and assigns
// chunk_index sequentially across the whole document.
func (c *Chunker) ChunkFragments(fragments []parser.Fragment) []Chunk {
	var out []Chunk
	idx := 0
	for _, f := range fragments {
		pieces := c.splitText(f.Text)
		for _, piece := range pieces {
			meta := copyMeta(f.Metadata)
			meta["chunk_index"] = strconv.Itoa(idx)
			if _, ok := meta["source_location"]; !ok {
				meta["source_location"] = f.SourceLocation
			}
			out = append(out, Chunk{Text: piece, Metadata: meta})
			idx++
		}
	}
	return out
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// splitText windows text into chunks of roughly cfg.ChunkSize characters,
// prepends cfg.Overlap trailing characters of the previous chunk to the
// next, and merges an undersized tail chunk into its predecessor.
func (c *Chunker) splitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.cfg.ChunkSize {
		return []string{text}
	}

	windows := c.windowByBoundary(runes)
	windows = c.applyOverlap(windows)
	return mergeUndersizedTail(windows, c.cfg.ChunkSize)
}

// windowByBoundary produces non-overlapping windows, each cut at a
// paragraph, sentence, or whitespace boundary close to cfg.ChunkSize.
func (c *Chunker) windowByBoundary(runes []rune) []string {
	var out []string
	start := 0
	n := len(runes)

	for start < n {
		ideal := start + c.cfg.ChunkSize
		if ideal >= n {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}

		cut := findBoundaryCut(runes, start, ideal)
		if cut <= start {
			cut = ideal
		}
		out = append(out, strings.TrimSpace(string(runes[start:cut])))
		start = cut
	}

	return out
}

// findBoundaryCut looks backward from ideal (but no further back than
// halfway into the window, to avoid degenerate tiny chunks) for a
// paragraph break, then a sentence end, then whitespace. If none is found
// it cuts at the next whitespace after ideal, so a long token stays whole.
func findBoundaryCut(runes []rune, start, ideal int) int {
	floor := start + (ideal-start)/2
	if floor < start {
		floor = start
	}

	if p := lastParagraphBreak(runes, floor, ideal); p > 0 {
		return p
	}
	if p := lastSentenceEnd(runes, floor, ideal); p > 0 {
		return p
	}
	if p := lastWhitespace(runes, floor, ideal); p > 0 {
		return p
	}
	for i := ideal; i < len(runes); i++ {
		if isSpace(runes[i]) {
			return i
		}
	}
	return len(runes)
}

func lastParagraphBreak(runes []rune, floor, ideal int) int {
	for i := ideal; i > floor; i-- {
		if i+1 < len(runes) && runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	return -1
}

func lastSentenceEnd(runes []rune, floor, ideal int) int {
	for i := ideal; i > floor; i-- {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && isSpace(runes[i+1]) {
			return i + 1
		}
	}
	return -1
}

func lastWhitespace(runes []rune, floor, ideal int) int {
	for i := ideal; i > floor; i-- {
		if isSpace(runes[i]) {
			return i
		}
	}
	return -1
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}

// applyOverlap prepends the trailing cfg.Overlap characters of each chunk
// to the chunk that follows it.
func (c *Chunker) applyOverlap(windows []string) []string {
	if c.cfg.Overlap <= 0 || len(windows) < 2 {
		return windows
	}

	out := make([]string, len(windows))
	out[0] = windows[0]
	for i := 1; i < len(windows); i++ {
		prev := []rune(windows[i-1])
		overlapLen := c.cfg.Overlap
		if overlapLen > len(prev) {
			overlapLen = len(prev)
		}
		overlap := string(prev[len(prev)-overlapLen:])
		out[i] = strings.TrimSpace(overlap + " " + windows[i])
	}
	return out
}

// mergeUndersizedTail folds the final chunk into its predecessor when it
// falls below 40% of chunkSize.
func mergeUndersizedTail(chunks []string, chunkSize int) []string {
	if len(chunks) < 2 {
		return chunks
	}
	tail := chunks[len(chunks)-1]
	if len([]rune(tail)) < int(float64(chunkSize)*0.4) {
		merged := make([]string, len(chunks)-1)
		copy(merged, chunks[:len(chunks)-1])
		merged[len(merged)-1] = strings.TrimSpace(merged[len(merged)-1] + " " + tail)
		return merged
	}
	return chunks
}
