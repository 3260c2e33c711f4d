package symbols

import "github.com/charmbracelet/lipgloss"

// TerminalFormatter 在 ANSI 终端中将符号渲染为彩色徽标
type TerminalFormatter struct {
	number   lipgloss.Style
	fallback lipgloss.Style
}

// NewTerminalFormatter 使用法术力配色创建格式化器
func NewTerminalFormatter() TerminalFormatter {
	return TerminalFormatter{
		number: lipgloss.NewStyle().
			Background(lipgloss.Color("#CCCCCC")).
			Foreground(lipgloss.Color("#333333")).
			Bold(true),
		fallback: lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true),
	}
}

// Format 实现 Formatter
func (f TerminalFormatter) Format(g Glyph) string {
	label := " " + badgeLabel(g) + " "
	switch g.Variant {
	case VariantSymbol:
		bg, fg := paletteFor(g.Symbol.Color)
		return lipgloss.NewStyle().
			Background(lipgloss.Color(bg)).
			Foreground(lipgloss.Color(fg)).
			Bold(true).
			Render(label)
	case VariantNumber:
		return f.number.Render(label)
	default:
		return f.fallback.Render("(" + badgeLabel(g) + ")")
	}
}
