package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/symbols"
)

// Terminal 将消息渲染为 ANSI 文本
type Terminal struct {
	codec    *symbols.Codec
	markdown *glamour.TermRenderer

	banner   lipgloss.Style
	card     lipgloss.Style
	heading  lipgloss.Style
	label    lipgloss.Style
	userLine lipgloss.Style
}

// NewTerminal 创建终端渲染器，按 width 列换行；plain 为 true 时不输出样式。
func NewTerminal(width int, plain bool) *Terminal {
	if width <= 0 {
		width = 80
	}
	style := glamour.WithAutoStyle()
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		md = nil
	}

	return &Terminal{
		codec:    symbols.NewCodec(symbols.NewTerminalFormatter()),
		markdown: md,
		banner: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8B4513")).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("#D97706")).
			PaddingLeft(1),
		card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#B45309")).
			Padding(0, 1).
			Width(width - 4),
		heading:  lipgloss.NewStyle().Bold(true).Underline(true),
		label:    lipgloss.NewStyle().Foreground(lipgloss.Color("#B45309")).Bold(true),
		userLine: lipgloss.NewStyle().Foreground(lipgloss.Color("#92400E")),
	}
}

// Render 渲染单条消息
func (t *Terminal) Render(turn chat.Turn) string {
	switch p := turn.Payload.(type) {
	case chat.StructuredRuling:
		return t.renderRuling(p)
	case chat.MarkdownBody:
		return t.renderMarkdown(p.Markdown)
	case chat.PlainText:
		if turn.Role == chat.RoleUser {
			return t.userLine.Render("> ") + t.codec.Render(p.Text)
		}
		return t.codec.Render(p.Text)
	default:
		return ""
	}
}

func (t *Terminal) renderMarkdown(md string) string {
	if t.markdown == nil {
		return t.codec.Render(md)
	}
	out, err := t.markdown.Render(md)
	if err != nil {
		return t.codec.Render(md)
	}
	return t.codec.Render(strings.TrimRight(out, "\n"))
}

func (t *Terminal) renderRuling(p chat.StructuredRuling) string {
	var b strings.Builder
	b.WriteString(t.banner.Render(t.codec.Render(p.OverallExplanation)))

	for _, c := range p.Cards {
		var card strings.Builder
		card.WriteString(t.heading.Render(c.Name))
		if c.Type != "" {
			card.WriteString("\n" + t.codec.Render(c.Type))
		}
		if c.OracleText != "" {
			card.WriteString("\n\n" + t.codec.Render(c.OracleText))
		}
		if c.ImageURL != "" {
			card.WriteString("\n" + c.ImageURL)
		}
		b.WriteString("\n" + t.card.Render(card.String()))
	}

	for _, g := range GroupCitations(p.Citations) {
		b.WriteString("\n" + t.heading.Render(g.Title))
		for _, c := range g.Items {
			line := "  • "
			if label := CitationLabel(c); label != "" {
				line += t.label.Render(label) + " "
			}
			b.WriteString("\n" + line + t.codec.Render(c.Text))
		}
	}
	return b.String()
}
