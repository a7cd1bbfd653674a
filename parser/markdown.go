package parser

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser extracts heading/paragraph/list-item/code-block sections
// from a Markdown document's AST via goldmark, rather than regexing the
// raw markup.
type MarkdownParser struct{}

func (p *MarkdownParser) SupportedFormats() []string { return []string{"md"} }

func (p *MarkdownParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading Markdown: %w", err)
	}

	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	w := &markdownWalker{source: source}
	_ = ast.Walk(doc, w.visit)

	if len(w.sections) == 0 {
		return nil, fmt.Errorf("no content found in Markdown document")
	}

	return &ParseResult{
		Sections: w.sections,
		Method:   "native",
	}, nil
}

// markdownWalker carries the nearest preceding heading's text and level
// so every non-heading section emitted after it inherits the heading as
// its section title, until a later heading replaces it.
type markdownWalker struct {
	source   []byte
	sections []Section

	currentHeading string
	currentLevel   int
}

func (w *markdownWalker) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	switch node := n.(type) {
	case *ast.Heading:
		text := strings.TrimSpace(string(node.Text(w.source)))
		if text != "" {
			w.sections = append(w.sections, Section{
				Heading: text,
				Level:   node.Level,
				Type:    "section",
			})
			w.currentHeading = text
			w.currentLevel = node.Level
		}
		return ast.WalkSkipChildren, nil

	case *ast.Paragraph:
		text := strings.TrimSpace(string(node.Text(w.source)))
		if text != "" {
			w.sections = append(w.sections, Section{
				Heading: w.currentHeading,
				Content: text,
				Level:   w.currentLevel,
				Type:    "paragraph",
			})
		}
		return ast.WalkSkipChildren, nil

	case *ast.ListItem:
		content := strings.TrimSpace(string(node.Text(w.source)))
		if content != "" {
			w.sections = append(w.sections, Section{
				Heading: w.currentHeading,
				Content: content,
				Level:   w.currentLevel,
				Type:    "list_item",
			})
		}
		return ast.WalkSkipChildren, nil

	case *ast.FencedCodeBlock:
		var b bytes.Buffer
		for i := 0; i < node.Lines().Len(); i++ {
			line := node.Lines().At(i)
			b.Write(line.Value(w.source))
		}
		w.sections = append(w.sections, Section{
			Heading: w.currentHeading,
			Content: strings.TrimRight(b.String(), "\n"),
			Level:   w.currentLevel,
			Type:    "code",
		})
		return ast.WalkSkipChildren, nil

	case *ast.Blockquote:
		text := strings.TrimSpace(string(node.Text(w.source)))
		if text != "" {
			w.sections = append(w.sections, Section{
				Heading: w.currentHeading,
				Content: text,
				Level:   w.currentLevel,
				Type:    "quote",
			})
		}
		return ast.WalkSkipChildren, nil
	}

	return ast.WalkContinue, nil
}
