package render

import (
	"bufio"
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/zhouzirui/magic-chat/backend/internal/symbols"
)

// kindSymbolText 标记所在块含有符号标记的文本
var kindSymbolText = ast.NewNodeKind("SymbolText")

type symbolText struct {
	ast.BaseInline
	text *ast.Text
}

func (n *symbolText) Kind() ast.NodeKind { return kindSymbolText }

func (n *symbolText) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Text": string(n.text.Segment.Value(source)),
	}, nil)
}

// symbolTransformer 将含有符号标记的块中的文本节点替换为 symbolText。
// 扁平文本缺少任一花括号的块交给 goldmark 默认渲染；图片的 alt 文本保持原样。
type symbolTransformer struct{}

func (symbolTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()

	var blocks []ast.Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading, ast.KindTextBlock, east.KindTableCell:
			blocks = append(blocks, n)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, block := range blocks {
		if !symbols.HasDelimiters(flatten(block, source)) {
			continue
		}
		var targets []*ast.Text
		_ = ast.Walk(block, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
			if !entering {
				return ast.WalkContinue, nil
			}
			if n.Kind() == ast.KindImage {
				return ast.WalkSkipChildren, nil
			}
			if t, ok := n.(*ast.Text); ok && !t.IsRaw() {
				targets = append(targets, t)
			}
			return ast.WalkContinue, nil
		})
		for _, t := range targets {
			parent := t.Parent()
			if parent == nil {
				continue
			}
			parent.ReplaceChild(parent, t, &symbolText{text: t})
		}
	}
}

// flatten 拼接 n 下的所有文本
func flatten(n ast.Node, source []byte) string {
	var buf []byte
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			buf = append(buf, t.Segment.Value(source)...)
		case *ast.String:
			buf = append(buf, t.Value...)
		}
		return ast.WalkContinue, nil
	})
	return string(buf)
}

// symbolTextRenderer 先按 goldmark 的规则转义文本 (实体、反斜杠转义)，再交给编解码器替换符号。
type symbolTextRenderer struct {
	codec     *symbols.Codec
	writer    html.Writer
	hardWraps bool
}

func (r *symbolTextRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(kindSymbolText, r.render)
}

func (r *symbolTextRenderer) render(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	t := node.(*symbolText).text

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	r.writer.Write(bw, t.Segment.Value(source))
	if err := bw.Flush(); err != nil {
		return ast.WalkStop, err
	}
	_, _ = w.WriteString(r.codec.Render(buf.String()))
	if t.HardLineBreak() || (t.SoftLineBreak() && r.hardWraps) {
		_, _ = w.WriteString("<br>\n")
	} else if t.SoftLineBreak() {
		_ = w.WriteByte('\n')
	}
	return ast.WalkContinue, nil
}

func newMarkdown(codec *symbols.Codec) goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(symbolTransformer{}, 100)),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			renderer.WithNodeRenderers(util.Prioritized(&symbolTextRenderer{codec: codec, writer: html.DefaultWriter, hardWraps: true}, 100)),
		),
	)
}
