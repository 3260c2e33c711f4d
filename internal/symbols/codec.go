// Package symbols 将 {G}、{2/W} 等法术力标记替换为图形符号。
//
// 每个标记按顺序经过一组解析策略，最后一个策略总会成功，因此标记不会丢失。
package symbols

import (
	"regexp"
	"strconv"
	"strings"
)

// Variant 标识产生符号的策略
type Variant int

const (
	// VariantSymbol 有专属图片的符号
	VariantSymbol Variant = iota
	// VariantNumber 通用数字徽标
	VariantNumber
	// VariantFallback 显示原文的中性徽标
	VariantFallback
)

func (v Variant) String() string {
	switch v {
	case VariantSymbol:
		return "symbol"
	case VariantNumber:
		return "number"
	default:
		return "fallback"
	}
}

// Glyph 解析完成、待格式化的标记
type Glyph struct {
	Variant Variant
	// Token 含花括号的原文，例如 "{g}"。
	Token string
	// Key 花括号之间的原文
	Key string
	// Symbol 仅 VariantSymbol 时设置
	Symbol Symbol
	// Number 仅 VariantNumber 时设置
	Number int
}

// Strategy 解析大写的 key，无法处理时返回 false。
type Strategy interface {
	Resolve(key, raw string) (Glyph, bool)
}

// StrategyFunc 将函数适配为 Strategy
type StrategyFunc func(key, raw string) (Glyph, bool)

// Resolve 实现 Strategy
func (f StrategyFunc) Resolve(key, raw string) (Glyph, bool) { return f(key, raw) }

// Formatter 将符号转换为输出标记
type Formatter interface {
	Format(g Glyph) string
}

// MaxGenericNumber 以数字徽标渲染的最大整数
const MaxGenericNumber = 99

var tokenPattern = regexp.MustCompile(`\{([^{}]+)\}`)

// Codec 将文本中的标记替换为格式化后的符号
type Codec struct {
	strategies []Strategy
	formatter  Formatter
}

// Option 配置 Codec
type Option func(*Codec)

// WithStrategies 替换默认策略列表，兜底徽标始终追加在最后。
func WithStrategies(strategies ...Strategy) Option {
	return func(c *Codec) {
		c.strategies = append([]Strategy(nil), strategies...)
	}
}

// NewCodec 使用默认符号表创建编解码器
func NewCodec(formatter Formatter, opts ...Option) *Codec {
	c := &Codec{
		strategies: DefaultStrategies(DefaultTable()),
		formatter:  formatter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultStrategies 依次返回符号表查找、斜杠别名查找与通用数字徽标。
func DefaultStrategies(table Table) []Strategy {
	return []Strategy{
		TableStrategy(table),
		AliasStrategy(table),
		StrategyFunc(resolveInteger),
	}
}

// TableStrategy 解析符号表中存在的 key
func TableStrategy(table Table) Strategy {
	return StrategyFunc(func(key, raw string) (Glyph, bool) {
		sym, ok := table.Lookup(key)
		if !ok {
			return Glyph{}, false
		}
		return Glyph{Variant: VariantSymbol, Symbol: sym}, true
	})
}

// AliasStrategy 按符号表解析斜杠写法 ("W/U"、"G/P")
func AliasStrategy(table Table) Strategy {
	return StrategyFunc(func(key, raw string) (Glyph, bool) {
		canonical, ok := canonicalKey(key)
		if !ok {
			return Glyph{}, false
		}
		sym, ok := table.Lookup(canonical)
		if !ok {
			return Glyph{}, false
		}
		return Glyph{Variant: VariantSymbol, Symbol: sym}, true
	})
}

func resolveInteger(key, raw string) (Glyph, bool) {
	for _, r := range key {
		if r < '0' || r > '9' {
			return Glyph{}, false
		}
	}
	n, err := strconv.Atoi(key)
	if err != nil || n > MaxGenericNumber {
		return Glyph{}, false
	}
	return Glyph{Variant: VariantNumber, Number: n}, true
}

// Resolve 对单个 key (不含花括号) 执行策略链
func (c *Codec) Resolve(raw string) Glyph {
	key := strings.ToUpper(raw)
	for _, s := range c.strategies {
		if g, ok := s.Resolve(key, raw); ok {
			g.Key = raw
			g.Token = "{" + raw + "}"
			return g
		}
	}
	return Glyph{Variant: VariantFallback, Key: raw, Token: "{" + raw + "}"}
}

// Render 替换文本中的所有标记，不含标记的文本原样返回。
func (c *Codec) Render(text string) string {
	if !HasDelimiters(text) {
		return text
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(match string) string {
		return c.formatter.Format(c.Resolve(match[1 : len(match)-1]))
	})
}

// HasDelimiters 判断文本是否同时包含左右花括号，即 Render 是否可能修改它。
func HasDelimiters(text string) bool {
	return strings.ContainsRune(text, '{') && strings.ContainsRune(text, '}')
}
