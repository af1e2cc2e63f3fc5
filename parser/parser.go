// Package parser turns documents of known file types into ordered
// sequences of text fragments carrying provenance metadata.
package parser

import "context"

// Fragment is one logical unit extracted from a document: a page, a
// sheet, a slide, a row window, or a whole file, depending on doc_type.
type Fragment struct {
	Text           string
	SourceLocation string
	Metadata       map[string]string
}

// Parser turns one file into an ordered sequence of fragments. filename is
// the declared (client-supplied) name, which may differ from path when the
// file was staged under a temporary name.
type Parser interface {
	Parse(ctx context.Context, path, filename string) ([]Fragment, error)
	Extensions() []string
}

// ParseError reports that a parser could not open or decode a file. It
// aborts ingestion of that single file without affecting others.
type ParseError struct {
	Filename string
	Reason   string
}

func (e *ParseError) Error() string {
	return "parser: " + e.Filename + ": " + e.Reason
}
