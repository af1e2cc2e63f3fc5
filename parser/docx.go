package parser

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

const docxMaxFragmentChars = 1000

// DOCXParser concatenates nonempty paragraphs, then splits the result into
// fragments of roughly docxMaxFragmentChars at paragraph boundaries.
type DOCXParser struct{}

func (p *DOCXParser) Extensions() []string { return []string{"docx"} }

func (p *DOCXParser) Parse(ctx context.Context, path, filename string) ([]Fragment, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening DOCX: %w", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in DOCX")
	}

	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("opening document.xml: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	paragraphs, err := parseDocxParagraphs(data)
	if err != nil {
		return nil, fmt.Errorf("parsing DOCX XML: %w", err)
	}

	regType := classifyDocxRegulatoryType(filename, strings.Join(paragraphs, " "))
	chunks := packParagraphs(paragraphs, docxMaxFragmentChars)

	fragments := make([]Fragment, 0, len(chunks))
	for i, text := range chunks {
		fragments = append(fragments, Fragment{
			Text:           text,
			SourceLocation: fmt.Sprintf("Paragraph group %d", i+1),
			Metadata: map[string]string{
				"doc_type":        "word",
				"regulatory_type": regType,
				"chunk_index":     fmt.Sprintf("%d", i),
			},
		})
	}
	return fragments, nil
}

// packParagraphs greedily joins consecutive paragraphs into fragments no
// longer than maxChars, splitting only at paragraph boundaries. A single
// paragraph longer than maxChars becomes one fragment of its full length.
func packParagraphs(paragraphs []string, maxChars int) []string {
	var out []string
	var cur strings.Builder
	for _, para := range paragraphs {
		if cur.Len() > 0 && cur.Len()+len(para)+1 > maxChars {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n")
		}
		cur.WriteString(para)
	}
	if cur.Len() > 0 {
		out = append(out, strings.TrimSpace(cur.String()))
	}
	return out
}

func classifyDocxRegulatoryType(filename, content string) string {
	haystack := strings.ToLower(filename + " " + content)
	switch {
	case strings.Contains(haystack, "guidance") || strings.Contains(haystack, "guideline"):
		return "regulatory_guidance"
	case strings.Contains(haystack, "policy"):
		return "regulatory_policy"
	default:
		return "regulatory_document"
	}
}

// DOCX XML structures (simplified).
type docxBody struct {
	XMLName xml.Name   `xml:"body"`
	Paras   []docxPara `xml:"p"`
}

type docxDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    docxBody `xml:"body"`
}

type docxPara struct {
	XMLName xml.Name  `xml:"p"`
	Runs    []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

func parseDocxParagraphs(data []byte) ([]string, error) {
	var doc docxDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	var paragraphs []string
	for _, para := range doc.Body.Paras {
		text := extractParaText(para)
		if strings.TrimSpace(text) != "" {
			paragraphs = append(paragraphs, strings.TrimSpace(text))
		}
	}
	return paragraphs, nil
}

func extractParaText(para docxPara) string {
	var b strings.Builder
	for _, run := range para.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return b.String()
}
