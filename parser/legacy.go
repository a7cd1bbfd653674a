package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"unicode"
)

// LegacyParser handles the older binary Office formats (.doc, .xls, .ppt).
// It first tries the DOCX/XLSX zip-based extractors in case the file is
// actually an OOXML document with a legacy extension; when that fails
// (true OLE2 binary), it falls back to scanning the file for runs of
// printable text, which recovers most of the prose content without a
// full OLE2 Compound File reader.
type LegacyParser struct {
	docx *DOCXParser
	xlsx *XLSXParser
}

func NewLegacyParser() *LegacyParser {
	return &LegacyParser{docx: &DOCXParser{}, xlsx: &XLSXParser{}}
}

func (p *LegacyParser) SupportedFormats() []string { return []string{"doc", "xls", "ppt"} }

func (p *LegacyParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	ext := filepath.Ext(path)
	switch ext {
	case ".xls":
		if res, err := p.xlsx.Parse(ctx, path); err == nil {
			return res, nil
		}
	default:
		if res, err := p.docx.Parse(ctx, path); err == nil {
			return res, nil
		}
	}
	return p.textFallback(path)
}

// textFallback scans a legacy binary file for contiguous runs of printable
// ASCII text at least minRunLength long, which recovers readable
// prose from OLE2 .doc/.xls/.ppt streams without parsing the compound
// file format itself.
func (p *LegacyParser) textFallback(path string) (*ParseResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading legacy file: %w", err)
	}

	const minRunLength = 6
	var runs []string
	var cur bytes.Buffer

	flush := func() {
		if cur.Len() >= minRunLength {
			runs = append(runs, cur.String())
		}
		cur.Reset()
	}

	for _, b := range data {
		r := rune(b)
		if b < 0x80 && (unicode.IsPrint(r) || r == '\n') {
			cur.WriteByte(b)
		} else {
			flush()
		}
	}
	flush()

	if len(runs) == 0 {
		return nil, fmt.Errorf("no recoverable text found in legacy file %s", path)
	}

	text := joinRuns(runs)
	return &ParseResult{
		Sections: []Section{
			{
				Content: text,
				Type:    "paragraph",
			},
		},
		Method:   "legacy-text-fallback",
		Metadata: map[string]string{"fallback": "true"},
	}, nil
}

func joinRuns(runs []string) string {
	out := new(bytes.Buffer)
	for i, r := range runs {
		if i > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(r)
	}
	return out.String()
}
