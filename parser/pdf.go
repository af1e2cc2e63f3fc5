package parser

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFParser extracts one fragment per page, in visual reading order.
// Blank pages are dropped.
type PDFParser struct{}

func (p *PDFParser) Extensions() []string { return []string{"pdf"} }

func (p *PDFParser) Parse(ctx context.Context, path, filename string) ([]Fragment, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	totalPages := reader.NumPage()
	fragments := make([]Fragment, 0, totalPages)

	for i := 1; i <= totalPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := extractPageTextOrdered(page)
		if err != nil {
			// A corrupt page is logged and skipped; it does not abort the file.
			slog.Warn("parser: skipping unreadable PDF page", "filename", filename, "page", i, "error", err)
			continue
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		fragments = append(fragments, Fragment{
			Text:           text,
			SourceLocation: "Page " + strconv.Itoa(i),
			Metadata: map[string]string{
				"page_number":  strconv.Itoa(i),
				"total_pages":  strconv.Itoa(totalPages),
				"doc_type":     "pdf",
				"chunk_index":  "0",
			},
		})
	}

	return fragments, nil
}

// extractPageTextOrdered extracts text from a PDF page sorted by visual
// position (top-to-bottom). The default GetPlainText reads text in PDF
// object order which can differ from visual layout — headings may appear
// after the body text they label.
//
// This groups Content() elements into visual lines by Y proximity
// (preserving content-stream order within each line, since some PDFs use
// negative text matrices that would garble an X sort), then sorts lines by
// Y descending so the result follows top-to-bottom reading order.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0

	type visualLine struct {
		y   float64
		buf strings.Builder
	}

	var lines []*visualLine
	var cur *visualLine

	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}

	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].y > lines[j].y
	})

	var parts []string
	for _, l := range lines {
		text := strings.TrimSpace(l.buf.String())
		if text != "" {
			parts = append(parts, text)
		}
	}

	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}

	return result, nil
}
