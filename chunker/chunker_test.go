package chunker

import (
	"strings"
	"testing"

	"github.com/regdocs/ragcore/parser"
)

func TestChunkFragmentsShortTextUnsplit(t *testing.T) {
	c := New(DefaultConfig())
	frags := []parser.Fragment{{
		Text:           "This fits in a single chunk.",
		SourceLocation: "Page 1",
		Metadata:       map[string]string{"filename": "a.txt"},
	}}

	chunks := c.ChunkFragments(frags)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != frags[0].Text {
		t.Errorf("Text = %q, want unmodified", chunks[0].Text)
	}
	if chunks[0].Metadata["chunk_index"] != "0" {
		t.Errorf("chunk_index = %q, want 0", chunks[0].Metadata["chunk_index"])
	}
	if chunks[0].Metadata["filename"] != "a.txt" {
		t.Error("parent fragment metadata not copied to chunk")
	}
}

func TestChunkFragmentsSplitsLongText(t *testing.T) {
	cfg := Config{ChunkSize: 100, Overlap: 10}
	c := New(cfg)

	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("This is a sentence about regulatory capital requirements. ")
	}
	frags := []parser.Fragment{{Text: b.String(), Metadata: map[string]string{"filename": "x.pdf"}}}

	chunks := c.ChunkFragments(frags)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long text, got %d", len(chunks))
	}
	for i, ch := range chunks {
		if ch.Metadata["chunk_index"] != itoa(i) {
			t.Errorf("chunk[%d] chunk_index = %q, want %q", i, ch.Metadata["chunk_index"], itoa(i))
		}
		if strings.HasPrefix(ch.Text, " ") || strings.HasSuffix(ch.Text, " ") {
			t.Errorf("chunk[%d] has untrimmed whitespace: %q", i, ch.Text)
		}
	}
}

func TestChunkFragmentsNeverSplitsMidWord(t *testing.T) {
	cfg := Config{ChunkSize: 50, Overlap: 5}
	c := New(cfg)

	text := strings.Repeat("supercalifragilisticexpialidocious ", 10)
	chunks := c.splitText(text)

	for _, chunk := range chunks {
		words := strings.Fields(chunk)
		for _, w := range words {
			if w != "supercalifragilisticexpialidocious" && !strings.Contains("supercalifragilisticexpialidocious", w) {
				t.Errorf("chunk contains a split token: %q", w)
			}
		}
	}
}

func TestMergeUndersizedTail(t *testing.T) {
	chunks := []string{strings.Repeat("a", 800), strings.Repeat("b", 100)}
	merged := mergeUndersizedTail(chunks, 800)
	if len(merged) != 1 {
		t.Fatalf("expected tail merged into previous chunk, got %d chunks", len(merged))
	}
}

func TestMergeUndersizedTailKeepsLargeTail(t *testing.T) {
	chunks := []string{strings.Repeat("a", 800), strings.Repeat("b", 500)}
	merged := mergeUndersizedTail(chunks, 800)
	if len(merged) != 2 {
		t.Fatalf("expected tail kept separate, got %d chunks", len(merged))
	}
}

func TestChunkFragmentsCopiesParentMetadataNotChunkIndex(t *testing.T) {
	c := New(DefaultConfig())
	frags := []parser.Fragment{
		{Text: "first fragment", Metadata: map[string]string{"filename": "f.txt", "chunk_index": "99"}},
		{Text: "second fragment", Metadata: map[string]string{"filename": "f.txt", "chunk_index": "99"}},
	}
	chunks := c.ChunkFragments(frags)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Metadata["chunk_index"] != "0" || chunks[1].Metadata["chunk_index"] != "1" {
		t.Errorf("chunk_index not renumbered across document: %v, %v",
			chunks[0].Metadata["chunk_index"], chunks[1].Metadata["chunk_index"])
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var digits []byte
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits)
}
