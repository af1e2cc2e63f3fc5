package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser strips script/style content, collapses whitespace, and emits
// one whole-document fragment. Title and meta description/keywords are
// lifted into metadata when present.
type HTMLParser struct{}

func (p *HTMLParser) Extensions() []string { return []string{"html", "htm"} }

func (p *HTMLParser) Parse(ctx context.Context, path, filename string) ([]Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading HTML: %w", err)
	}

	doc, err := html.Parse(strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	meta := map[string]string{"doc_type": "html", "chunk_index": "0"}
	var b strings.Builder
	collectHTMLText(doc, &b, meta)

	text := collapseWhitespace(b.String())
	if text == "" {
		return nil, nil
	}

	return []Fragment{{
		Text:           text,
		SourceLocation: "Whole document",
		Metadata:       meta,
	}}, nil
}

func collectHTMLText(n *html.Node, b *strings.Builder, meta map[string]string) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style:
			return
		case atom.Title:
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				meta["title"] = strings.TrimSpace(n.FirstChild.Data)
			}
		case atom.Meta:
			name := attrVal(n, "name")
			content := attrVal(n, "content")
			switch strings.ToLower(name) {
			case "description":
				meta["meta_description"] = content
			case "keywords":
				meta["meta_keywords"] = content
			}
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteString(" ")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectHTMLText(c, b, meta)
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.TrimSpace(strings.Join(fields, " "))
}
