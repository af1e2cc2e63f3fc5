package parser

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// TextParser handles plain text and Markdown files identically: one
// fragment for the whole (trimmed) file. Empty files yield zero fragments.
type TextParser struct{ markdown bool }

func (p *TextParser) Extensions() []string {
	if p.markdown {
		return []string{"md", "markdown"}
	}
	return []string{"txt"}
}

func (p *TextParser) Parse(ctx context.Context, path, filename string) ([]Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}

	docType := "text"
	if p.markdown {
		docType = "markdown"
	}

	return []Fragment{{
		Text:           content,
		SourceLocation: "Whole document",
		Metadata: map[string]string{
			"doc_type":    docType,
			"chunk_index": strconv.Itoa(0),
		},
	}}, nil
}
