package parser

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser extracts heading/paragraph/list-item sections from an HTML
// document's DOM, walking the parsed tree with golang.org/x/net/html
// rather than regexing tags out of the raw markup.
type HTMLParser struct{}

func (p *HTMLParser) SupportedFormats() []string { return []string{"html", "htm"} }

func (p *HTMLParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening HTML: %w", err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	w := &htmlWalker{}
	w.walk(doc)

	if len(w.sections) == 0 {
		return nil, fmt.Errorf("no content found in HTML document")
	}

	return &ParseResult{
		Sections: w.sections,
		Method:   "native",
	}, nil
}

// htmlWalker carries the nearest preceding heading's text and level so
// that every non-heading section emitted after it inherits the heading
// as its section title, until a later heading replaces it.
type htmlWalker struct {
	sections []Section

	currentHeading string
	currentLevel   int
}

func (w *htmlWalker) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Head:
			return
		case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			text := strings.TrimSpace(textContent(n))
			if text != "" {
				level := headingLevel(n.DataAtom)
				w.sections = append(w.sections, Section{
					Heading: text,
					Level:   level,
					Type:    "section",
				})
				w.currentHeading = text
				w.currentLevel = level
			}
			return
		case atom.P:
			text := strings.TrimSpace(textContent(n))
			if text != "" {
				w.sections = append(w.sections, Section{
					Heading: w.currentHeading,
					Content: text,
					Level:   w.currentLevel,
					Type:    "paragraph",
				})
			}
			return
		case atom.Li:
			text := strings.TrimSpace(textContent(n))
			if text != "" {
				w.sections = append(w.sections, Section{
					Heading: w.currentHeading,
					Content: text,
					Level:   w.currentLevel,
					Type:    "list_item",
				})
			}
			return
		case atom.Table:
			text := tableText(n)
			if text != "" {
				w.sections = append(w.sections, Section{
					Heading: w.currentHeading,
					Content: text,
					Level:   w.currentLevel,
					Type:    "table",
				})
			}
			return
		case atom.Blockquote:
			text := strings.TrimSpace(textContent(n))
			if text != "" {
				w.sections = append(w.sections, Section{
					Heading: w.currentHeading,
					Content: text,
					Level:   w.currentLevel,
					Type:    "quote",
				})
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	default:
		return 6
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// tableText renders an HTML table's rows as pipe-delimited lines, matching
// the markdown-table shape the chunker's table heuristics already detect.
func tableText(table *html.Node) string {
	var b strings.Builder
	var walkRows func(*html.Node)
	walkRows = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					cells = append(cells, strings.TrimSpace(textContent(c)))
				}
			}
			if len(cells) > 0 {
				b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walkRows(c)
		}
	}
	walkRows(table)
	return strings.TrimSpace(b.String())
}
