package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type XLSXParser struct{}

func (p *XLSXParser) SupportedFormats() []string { return []string{"xlsx", "xls"} }

func (p *XLSXParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	var sections []Section

	// One Section per non-empty cell, with the sheet name carried as the
	// inherited section title — the structured chunker turns each into a
	// standalone TABLE_CELL chunk.
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}

		for r, row := range rows {
			for c, cell := range row {
				cell = strings.TrimSpace(cell)
				if cell == "" {
					continue
				}
				sections = append(sections, Section{
					Heading: sheet,
					Content: cell,
					Type:    "table",
					Level:   1,
					Metadata: map[string]string{
						"sheet_name": sheet,
						"row":        fmt.Sprintf("%d", r+1),
						"column":     fmt.Sprintf("%d", c+1),
					},
				})
			}
		}
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}

	return &ParseResult{
		Sections: sections,
		Method:   "native",
	}, nil
}
