package process

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractHeadings returns the headings of a saved document body in order.
// Bodies mark headings with an "=" underline, which parses as a setext heading.
func ExtractHeadings(body []byte) []string {
	doc := goldmark.DefaultParser().Parse(text.NewReader(body))

	var headings []string
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok {
			return ast.WalkContinue, nil
		}

		var sb strings.Builder
		_ = ast.Walk(heading, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			switch t := c.(type) {
			case *ast.Text:
				sb.Write(t.Segment.Value(body))
				if t.SoftLineBreak() || t.HardLineBreak() {
					sb.WriteByte(' ')
				}
			case *ast.String:
				sb.Write(t.Value)
			}
			return ast.WalkContinue, nil
		})
		if s := strings.TrimSpace(sb.String()); s != "" {
			headings = append(headings, s)
		}
		return ast.WalkSkipChildren, nil
	})

	return headings
}
