package symbols

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultAssetBase 符号图片的默认路径
const DefaultAssetBase = "/mana-symbols/"

// HTMLFormatter 将符号渲染为内联 HTML。输入应已转义，key 除引号外原样写入。
type HTMLFormatter struct {
	AssetBase string
}

// NewHTMLFormatter 创建从 assetBase 加载图片的格式化器
func NewHTMLFormatter(assetBase string) HTMLFormatter {
	if assetBase == "" {
		assetBase = DefaultAssetBase
	}
	if !strings.HasSuffix(assetBase, "/") {
		assetBase += "/"
	}
	return HTMLFormatter{AssetBase: assetBase}
}

// Format 实现 Formatter
func (f HTMLFormatter) Format(g Glyph) string {
	switch g.Variant {
	case VariantSymbol:
		return fmt.Sprintf(`<img src="%s%s" alt="%s" title="%s" class="mana mana-symbol">`,
			attr(f.AssetBase), g.Symbol.Asset, attr(g.Token), attr(g.Token))
	case VariantNumber:
		return fmt.Sprintf(`<span class="mana mana-number" title="%s">%d</span>`, attr(g.Token), g.Number)
	default:
		return fmt.Sprintf(`<span class="mana mana-fallback" title="%s">%s</span>`, attr(g.Token), g.Key)
	}
}

func attr(s string) string {
	return strings.ReplaceAll(s, `"`, "&#34;")
}

// palette 对应卡牌上的法术力颜色
var palette = map[Color]struct{ bg, fg string }{
	ColorWhite:     {bg: "#FFFBD5", fg: "#8B4513"},
	ColorBlue:      {bg: "#0E68AB", fg: "#FFFFFF"},
	ColorBlack:     {bg: "#150B00", fg: "#FFFFFF"},
	ColorRed:       {bg: "#D3202A", fg: "#FFFFFF"},
	ColorGreen:     {bg: "#00733E", fg: "#FFFFFF"},
	ColorColorless: {bg: "#CCCCCC", fg: "#333333"},
}

func paletteFor(c Color) (bg, fg string) {
	if p, ok := palette[c]; ok {
		return p.bg, p.fg
	}
	return "#DDDDDD", "#333333"
}

// badgeLabel 终端徽标中显示的短文本
func badgeLabel(g Glyph) string {
	switch g.Variant {
	case VariantSymbol:
		return g.Symbol.Key
	case VariantNumber:
		return strconv.Itoa(g.Number)
	default:
		return g.Key
	}
}
