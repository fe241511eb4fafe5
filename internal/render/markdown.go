package render

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// MarkdownRenderer turns imported markdown bodies into post HTML. Heading ids
// are left to toc.Process at serve time.
type MarkdownRenderer struct {
	md goldmark.Markdown
}

func NewMarkdownRenderer() *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Linkify,
			extension.Strikethrough,
			extension.Table,
			extension.Footnote,
		),
		goldmark.WithRendererOptions(html.WithUnsafe(), html.WithHardWraps()),
	)
	return &MarkdownRenderer{md: md}
}

type MarkdownResult struct {
	HTML []byte
	// First image destination, used as a thumbnail fallback.
	FirstImage string
	// Number of level-1 headings in the body. Posts render the title as h1.
	H1Count int
}

func (r *MarkdownRenderer) Render(src []byte) (MarkdownResult, error) {
	var buf bytes.Buffer

	ctx := parser.NewContext()
	reader := text.NewReader(src)
	doc := r.md.Parser().Parse(reader, parser.WithContext(ctx))

	var res MarkdownResult
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.Heading:
			if v.Level == 1 {
				res.H1Count++
			}
		case *ast.Image:
			if res.FirstImage == "" {
				res.FirstImage = string(v.Destination)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return MarkdownResult{}, err
	}

	if err := r.md.Renderer().Render(&buf, src, doc); err != nil {
		return MarkdownResult{}, err
	}
	res.HTML = buf.Bytes()
	return res, nil
}
