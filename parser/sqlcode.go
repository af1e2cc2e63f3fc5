package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CodeParser handles SQL (split into statements) and other source code
// (.py, .js, .ts — one whole-file fragment).
type CodeParser struct{}

func (p *CodeParser) Extensions() []string { return []string{"sql", "py", "js", "ts"} }

func (p *CodeParser) Parse(ctx context.Context, path, filename string) ([]Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source file: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	regType := classifyCodeRegulatoryType(filename, content)

	if ext == "sql" {
		statements := splitSQLStatements(content)
		fragments := make([]Fragment, 0, len(statements))
		for i, stmt := range statements {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			rt := regType
			if rt == "" {
				rt = classifySQLStatement(stmt)
			}
			fragments = append(fragments, Fragment{
				Text:           stmt,
				SourceLocation: fmt.Sprintf("Statement %d", i+1),
				Metadata: map[string]string{
					"doc_type":        "sql",
					"regulatory_type": rt,
					"chunk_index":     strconv.Itoa(i),
				},
			})
		}
		return fragments, nil
	}

	lineCount := strings.Count(content, "\n") + 1

	return []Fragment{{
		Text:           content,
		SourceLocation: "Whole file",
		Metadata: map[string]string{
			"doc_type":        "code",
			"language":        ext,
			"regulatory_type": regType,
			"chunk_index":     "0",
			"line_count":      strconv.Itoa(lineCount),
		},
	}}, nil
}

// splitSQLStatements splits on top-level semicolons, ignoring ones inside
// single/double-quoted string literals or line/block comments.
func splitSQLStatements(content string) []string {
	var statements []string
	var cur strings.Builder

	runes := []rune(content)
	var inSingle, inDouble, inLineComment, inBlockComment bool

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case inLineComment:
			cur.WriteRune(r)
			if r == '\n' {
				inLineComment = false
			}
			continue
		case inBlockComment:
			cur.WriteRune(r)
			if r == '*' && next == '/' {
				cur.WriteRune(next)
				i++
				inBlockComment = false
			}
			continue
		case inSingle:
			cur.WriteRune(r)
			if r == '\'' {
				inSingle = false
			}
			continue
		case inDouble:
			cur.WriteRune(r)
			if r == '"' {
				inDouble = false
			}
			continue
		}

		switch {
		case r == '-' && next == '-':
			inLineComment = true
			cur.WriteRune(r)
		case r == '/' && next == '*':
			inBlockComment = true
			cur.WriteRune(r)
		case r == '\'':
			inSingle = true
			cur.WriteRune(r)
		case r == '"':
			inDouble = true
			cur.WriteRune(r)
		case r == ';':
			statements = append(statements, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if strings.TrimSpace(cur.String()) != "" {
		statements = append(statements, cur.String())
	}
	return statements
}

func classifyCodeRegulatoryType(filename, content string) string {
	haystack := strings.ToLower(filename + " " + content)
	if strings.Contains(haystack, "lineage") || strings.Contains(haystack, "etl") || strings.Contains(haystack, "mapping") {
		return "data_lineage"
	}
	return ""
}

func classifySQLStatement(stmt string) string {
	lower := strings.ToLower(stmt)
	if strings.Contains(lower, "select") && (strings.Contains(lower, "from") || strings.Contains(lower, "join")) {
		return "sql_query"
	}
	return "data_lineage"
}
