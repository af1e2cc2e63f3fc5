package parser

import "strings"

// Registry dispatches by case-insensitive file extension, with a secondary
// lookup keyed by declared MIME type for clients that supply one.
type Registry struct {
	byExt  map[string]Parser
	byMIME map[string]Parser
}

// NewRegistry builds a registry with the built-in parsers for every
// supported upload type registered.
func NewRegistry() *Registry {
	r := &Registry{
		byExt:  make(map[string]Parser),
		byMIME: make(map[string]Parser),
	}

	builtins := []Parser{
		&PDFParser{},
		&DOCXParser{},
		&XLSXParser{},
		&PPTXParser{},
		&TextParser{markdown: false},
		&TextParser{markdown: true},
		&CSVParser{},
		&HTMLParser{},
		&CodeParser{},
	}
	for _, p := range builtins {
		for _, ext := range p.Extensions() {
			r.byExt[strings.ToLower(ext)] = p
		}
	}

	for mime, ext := range mimeAliases {
		if p, ok := r.byExt[ext]; ok {
			r.byMIME[mime] = p
		}
	}

	return r
}

// mimeAliases maps declared MIME types to the extension whose parser
// should handle them, per the upload-type table.
var mimeAliases = map[string]string{
	"application/pdf":            "pdf",
	"text/plain":                 "txt",
	"text/markdown":               "md",
	"text/csv":                   "csv",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": "docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       "xlsx",
	"application/vnd.ms-excel":                                               "xls",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"application/vnd.ms-powerpoint": "ppt",
	"text/html":                    "html",
	"application/sql":              "sql",
}

// Get returns the parser for a file extension (without the leading dot),
// case-insensitive.
func (r *Registry) Get(ext string) (Parser, bool) {
	p, ok := r.byExt[strings.ToLower(strings.TrimPrefix(ext, "."))]
	return p, ok
}

// GetByMIME returns the parser registered for a declared MIME type.
func (r *Registry) GetByMIME(mime string) (Parser, bool) {
	p, ok := r.byMIME[strings.ToLower(mime)]
	return p, ok
}

// Register installs or overrides the parser for an extension.
func (r *Registry) Register(ext string, p Parser) {
	r.byExt[strings.ToLower(ext)] = p
}
