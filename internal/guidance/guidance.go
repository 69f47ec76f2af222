// Package guidance turns operator-written markdown (the provide_guidance
// manual override) into plain-text instructions suitable for injection
// into a replacement session's prompt.
package guidance

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Parser extracts instructions from markdown guidance.
type Parser struct {
	markdown goldmark.Markdown
}

// NewParser creates a guidance Parser.
func NewParser() *Parser {
	return &Parser{
		markdown: goldmark.New(),
	}
}

// Instructions parses the guidance markdown and returns its content as a
// flat list of plain-text instructions: one entry per list item and per
// paragraph, headings prefixed with "#" to keep section context. Empty
// or whitespace-only guidance returns nil.
func (p *Parser) Instructions(guidance string) []string {
	source := []byte(strings.TrimSpace(guidance))
	if len(source) == 0 {
		return nil
	}

	doc := p.markdown.Parser().Parse(text.NewReader(source))

	var instructions []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			if heading := extractText(node, source); heading != "" {
				instructions = append(instructions, "# "+heading)
			}
			return ast.WalkSkipChildren, nil

		case *ast.ListItem:
			if item := firstBlockText(node, source); item != "" {
				instructions = append(instructions, item)
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph:
			// Top-level paragraphs only; list-item paragraphs are
			// handled above.
			if _, inList := node.Parent().(*ast.ListItem); inList {
				return ast.WalkContinue, nil
			}
			if para := extractText(node, source); para != "" {
				instructions = append(instructions, para)
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return instructions
}

// Render flattens guidance markdown into the single plain-text block the
// launch collaborator injects into the replacement session's prompt.
func (p *Parser) Render(guidance string) string {
	return strings.Join(p.Instructions(guidance), "\n")
}

// firstBlockText returns the text of a list item's first block child.
func firstBlockText(item *ast.ListItem, source []byte) string {
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if text := extractText(c, source); text != "" {
			return text
		}
	}
	return ""
}

// extractText extracts the plain text beneath an AST node.
func extractText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			buf.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(buf.String())
}
