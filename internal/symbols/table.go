package symbols

import (
	"strconv"
	"strings"
)

// Color 符号所属的法术力颜色
type Color string

const (
	ColorWhite     Color = "W"
	ColorBlue      Color = "U"
	ColorBlack     Color = "B"
	ColorRed       Color = "R"
	ColorGreen     Color = "G"
	ColorColorless Color = "C"
	ColorNone      Color = ""
)

// Symbol 有专属图片的符号
type Symbol struct {
	Key   string
	Asset string
	Color Color
}

// Table 以大写 key 索引的符号表
type Table map[string]Symbol

// Lookup 查找 key 对应的符号
func (t Table) Lookup(key string) (Symbol, bool) {
	s, ok := t[key]
	return s, ok
}

// DefaultTable 包含单色、通用 0-20、X、常见混色、非瑞克西亚法术力以及横置/重置。
func DefaultTable() Table {
	t := Table{}
	add := func(key string, color Color) {
		t[key] = Symbol{Key: key, Asset: strings.ToLower(key) + ".png", Color: color}
	}

	for _, c := range []Color{ColorWhite, ColorBlue, ColorBlack, ColorRed, ColorGreen, ColorColorless} {
		add(string(c), c)
	}
	for n := 0; n <= 20; n++ {
		add(strconv.Itoa(n), ColorNone)
	}
	add("X", ColorNone)
	add("T", ColorNone)
	add("Q", ColorNone)

	hybrids := []string{"RW", "WU", "UB", "BR", "RG", "GW", "WB", "UR", "BG", "GU"}
	for _, h := range hybrids {
		add(h, Color(h[:1]))
	}
	for _, c := range []Color{ColorWhite, ColorBlue, ColorBlack, ColorRed, ColorGreen} {
		add("P"+string(c), c)
	}
	return t
}

// canonicalKey 将斜杠写法转换为表中的 key："W/U" 变为 "WU"，"G/P" 变为 "PG"。
func canonicalKey(key string) (string, bool) {
	if !strings.Contains(key, "/") {
		return "", false
	}
	parts := strings.Split(key, "/")
	if len(parts) == 2 && parts[1] == "P" {
		return "P" + parts[0], true
	}
	return strings.Join(parts, ""), true
}
