package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxMaxRows = 50
	xlsxMaxCols = 10
)

// XLSXParser emits one fragment per non-empty sheet, rendered as a
// Markdown-style table bounded to the first 50 rows x 10 columns.
type XLSXParser struct{}

func (p *XLSXParser) Extensions() []string { return []string{"xlsx", "xls"} }

func (p *XLSXParser) Parse(ctx context.Context, path, filename string) ([]Fragment, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var fragments []Fragment

	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			// An unreadable or empty sheet is skipped, not an aborting failure.
			continue
		}

		bounded := rows
		if len(bounded) > xlsxMaxRows {
			bounded = bounded[:xlsxMaxRows]
		}

		var content strings.Builder
		for _, row := range bounded {
			cells := row
			if len(cells) > xlsxMaxCols {
				cells = cells[:xlsxMaxCols]
			}
			content.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}

		fragments = append(fragments, Fragment{
			Text:           content.String(),
			SourceLocation: "Sheet: " + sheet,
			Metadata: map[string]string{
				"doc_type":        "excel",
				"sheet_name":      sheet,
				"row_count":       strconv.Itoa(len(rows)),
				"regulatory_type": classifyExcelRegulatoryType(filename, sheet),
				"chunk_index":     "0",
			},
		})
	}

	return fragments, nil
}

// classifyExcelRegulatoryType tags a sheet from filename and sheet-name
// tokens. corep/finrep templates and data-mapping sheets are checked before
// the generic regulatory_template fallback.
func classifyExcelRegulatoryType(filename, sheet string) string {
	haystack := strings.ToLower(filename + " " + sheet)
	switch {
	case strings.Contains(haystack, "corep") || strings.Contains(haystack, "capital"):
		return "corep_template"
	case strings.Contains(haystack, "finrep") || strings.Contains(haystack, "financial") || strings.Contains(haystack, "ifrs"):
		return "finrep_template"
	case strings.Contains(haystack, "mapping") || strings.Contains(haystack, "lineage") || strings.Contains(haystack, "source"):
		return "data_mapping"
	default:
		return "regulatory_template"
	}
}
