package parser

import "fmt"

// Registry dispatches a document format to the Parser that handles it,
// per the format dispatch table: native extractors for every format the
// ingestion pipeline accepts, with no external parsing service in the
// loop.
type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}

	// No parser for presentation decks (.pptx) is registered here;
	// callers can Register one of their own.
	builtins := []Parser{
		&TextParser{},
		&PDFParser{},
		&DOCXParser{},
		&XLSXParser{},
		&HTMLParser{},
		&MarkdownParser{},
		NewLegacyParser(),
	}
	for _, p := range builtins {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

// Register overrides or adds a parser for a format, e.g. to plug in an
// OCR-backed image parser.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
