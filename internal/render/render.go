// Package render 将对话消息渲染为可展示的视图，并替换文本中的符号标记。
package render

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/metrics"
	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/symbols"
)

// View 单条消息的 HTML 渲染结果
type View struct {
	ID   string           `json:"id"`
	Role chat.Role        `json:"role"`
	Kind chat.PayloadKind `json:"kind"`
	HTML template.HTML    `json:"html"`
}

// Renderer 将消息渲染为 HTML 片段。渲染不会失败，异常输入退化为纯文本。
type Renderer struct {
	codec    *symbols.Codec
	markdown goldmark.Markdown
	ruling   *template.Template
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// Option 配置 Renderer
type Option func(*Renderer)

// WithMetrics 按内容类型统计渲染次数
func WithMetrics(m *metrics.Collector) Option {
	return func(r *Renderer) { r.metrics = m }
}

// New 创建 HTML 渲染器，assetBase 为符号图片路径
func New(assetBase string, logger *zap.Logger, opts ...Option) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	codec := symbols.NewCodec(symbols.NewHTMLFormatter(assetBase))
	r := &Renderer{
		codec:    codec,
		markdown: newMarkdown(codec),
		ruling:   template.Must(template.New("ruling").Parse(rulingTemplate)),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Codec 返回渲染器使用的符号编解码器
func (r *Renderer) Codec() *symbols.Codec { return r.codec }

// Render 渲染单条消息
func (r *Renderer) Render(turn chat.Turn) View {
	view := View{ID: turn.ID, Role: turn.Role}

	switch p := turn.Payload.(type) {
	case chat.StructuredRuling:
		view.Kind = chat.KindStructuredRuling
		view.HTML = r.renderRuling(p)
	case chat.MarkdownBody:
		view.Kind = chat.KindMarkdown
		view.HTML = r.renderMarkdown(p.Markdown)
	case chat.PlainText:
		view.Kind = chat.KindPlainText
		view.HTML = r.Text(p.Text)
	default:
		view.Kind = chat.KindPlainText
		view.HTML = r.Text("")
	}
	r.metrics.ObserveRender(string(view.Kind))
	return view
}

// RenderAll 按顺序渲染消息
func (r *Renderer) RenderAll(turns []chat.Turn) []View {
	views := make([]View, 0, len(turns))
	for _, t := range turns {
		views = append(views, r.Render(t))
	}
	return views
}

// Text 转义 s 并替换其中的标记
func (r *Renderer) Text(s string) template.HTML {
	return template.HTML(r.codec.Render(template.HTMLEscapeString(s)))
}

func (r *Renderer) renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(md), &buf); err != nil {
		r.logger.Warn("markdown conversion failed, rendering as text", zap.Error(err))
		return r.Text(md)
	}
	return template.HTML(strings.TrimSpace(buf.String()))
}

type cardView struct {
	Name       template.HTML
	Type       template.HTML
	OracleText template.HTML
	ImageURL   string
}

type citationView struct {
	Label string
	Text  template.HTML
}

type citationGroup struct {
	Kind  chat.CitationKind
	Title string
	Items []citationView
}

type rulingView struct {
	Explanation template.HTML
	Cards       []cardView
	Groups      []citationGroup
}

func (r *Renderer) renderRuling(p chat.StructuredRuling) template.HTML {
	data := rulingView{
		Explanation: r.Text(p.OverallExplanation),
		Cards:       make([]cardView, 0, len(p.Cards)),
	}
	for _, c := range p.Cards {
		data.Cards = append(data.Cards, cardView{
			Name:       r.Text(c.Name),
			Type:       r.Text(c.Type),
			OracleText: r.Text(c.OracleText),
			ImageURL:   c.ImageURL,
		})
	}
	for _, g := range GroupCitations(p.Citations) {
		group := citationGroup{Kind: g.Kind, Title: g.Title}
		for _, c := range g.Items {
			group.Items = append(group.Items, citationView{Label: CitationLabel(c), Text: r.Text(c.Text)})
		}
		data.Groups = append(data.Groups, group)
	}

	var buf bytes.Buffer
	if err := r.ruling.Execute(&buf, data); err != nil {
		r.logger.Warn("ruling template failed, rendering explanation only", zap.Error(err))
		return r.Text(p.OverallExplanation)
	}
	return template.HTML(buf.String())
}

// CitationGroup 同一类型的引用
type CitationGroup struct {
	Kind  chat.CitationKind
	Title string
	Items []chat.Citation
}

// GroupCitations 按类型分组引用，规则在裁定之前，组内保持原顺序，省略空组。
func GroupCitations(citations []chat.Citation) []CitationGroup {
	groups := []CitationGroup{
		{Kind: chat.CitationRule, Title: "Rules"},
		{Kind: chat.CitationRuling, Title: "Rulings"},
	}
	for _, c := range citations {
		for i := range groups {
			if groups[i].Kind == c.Kind {
				groups[i].Items = append(groups[i].Items, c)
			}
		}
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g.Items) > 0 {
			out = append(out, g)
		}
	}
	return out
}

// CitationLabel 优先返回 "#id"，其次为来源，否则为空。
func CitationLabel(c chat.Citation) string {
	if id := strings.TrimSpace(c.ID); id != "" {
		return "#" + id
	}
	return strings.TrimSpace(c.Source)
}

const rulingTemplate = `<div class="ruling">
<div class="ruling-explanation">{{.Explanation}}</div>
{{- range .Cards}}
<div class="ruling-card">
<div class="card-name">{{.Name}}</div>
<div class="card-type">{{.Type}}</div>
<div class="card-oracle">{{.OracleText}}</div>
{{- if .ImageURL}}
<img class="card-image" src="{{.ImageURL}}" alt="">
{{- end}}
</div>
{{- end}}
{{- range .Groups}}
<div class="citations citations-{{.Kind}}">
<div class="citations-title">{{.Title}}</div>
<ul>
{{- range .Items}}
<li>{{if .Label}}<span class="citation-label">{{.Label}}</span> {{end}}{{.Text}}</li>
{{- end}}
</ul>
</div>
{{- end}}
</div>`
