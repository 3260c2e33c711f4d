package chat

import (
	"bytes"
	"encoding/json"
)

// PayloadKind names a Payload variant.
type PayloadKind string

const (
	KindPlainText        PayloadKind = "plain"
	KindMarkdown         PayloadKind = "markdown"
	KindStructuredRuling PayloadKind = "ruling"
)

// Payload is the body of a turn. The set of implementations is closed:
// PlainText, MarkdownBody and StructuredRuling.
type Payload interface {
	Kind() PayloadKind
	payload()
}

// PlainText is used for user turns and legacy assistant replies.
type PlainText struct {
	Text string
}

func (PlainText) Kind() PayloadKind { return KindPlainText }
func (PlainText) payload()          {}

// MarkdownBody is an assistant reply meant for rich-text rendering. It may
// contain symbol tokens.
type MarkdownBody struct {
	Markdown string
}

func (MarkdownBody) Kind() PayloadKind { return KindMarkdown }
func (MarkdownBody) payload()          {}

// Card is a card referenced by a structured ruling.
type Card struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	OracleText string `json:"oracleText"`
	ImageURL   string `json:"imageUrl"`
}

// CitationKind is either a comprehensive rule or an official ruling.
type CitationKind string

const (
	CitationRule   CitationKind = "rule"
	CitationRuling CitationKind = "ruling"
)

// Valid reports whether k is one of the known citation kinds.
func (k CitationKind) Valid() bool {
	return k == CitationRule || k == CitationRuling
}

// Citation backs a structured ruling with a rule or ruling text.
type Citation struct {
	Kind   CitationKind `json:"type"`
	ID     string       `json:"id,omitempty"`
	Source string       `json:"source,omitempty"`
	Text   string       `json:"text"`
}

// StructuredRuling is an explanation plus the cards and citations it refers to.
type StructuredRuling struct {
	OverallExplanation string
	Cards              []Card
	Citations          []Citation
}

func (StructuredRuling) Kind() PayloadKind { return KindStructuredRuling }
func (StructuredRuling) payload()          {}

type rulingJSON struct {
	OverallExplanation string     `json:"overallExplanation"`
	Cards              []Card     `json:"cards"`
	Citations          []Citation `json:"citations,omitempty"`
}

// MarshalJSON always emits a cards array, even when empty.
func (r StructuredRuling) MarshalJSON() ([]byte, error) {
	cards := r.Cards
	if cards == nil {
		cards = []Card{}
	}
	return json.Marshal(rulingJSON{
		OverallExplanation: r.OverallExplanation,
		Cards:              cards,
		Citations:          r.Citations,
	})
}

// ClassifyContent decides whether raw is a structured ruling. It requires a
// JSON object carrying a string "overallExplanation" and an array "cards";
// the older single-card shape ("explanation" plus card fields) is upgraded
// to a one-card ruling. Malformed fields never cause an error, the content
// is simply not classified as a ruling.
func ClassifyContent(raw json.RawMessage) (StructuredRuling, bool) {
	fields, ok := decodeObject(raw)
	if !ok {
		return StructuredRuling{}, false
	}

	if explanation, ok := stringField(fields, "overallExplanation"); ok {
		elems, ok := arrayField(fields, "cards")
		if !ok {
			return StructuredRuling{}, false
		}
		ruling := StructuredRuling{
			OverallExplanation: explanation,
			Cards:              make([]Card, 0, len(elems)),
			Citations:          decodeCitations(fields),
		}
		for _, elem := range elems {
			if card, ok := decodeCard(elem); ok {
				ruling.Cards = append(ruling.Cards, card)
			}
		}
		return ruling, true
	}

	if explanation, ok := stringField(fields, "explanation"); ok {
		ruling := StructuredRuling{
			OverallExplanation: explanation,
			Cards:              []Card{},
			Citations:          decodeCitations(fields),
		}
		name, _ := stringField(fields, "cardName")
		if name != "" {
			cardType, _ := stringField(fields, "cardType")
			oracle, _ := stringField(fields, "oracleText")
			image, _ := stringField(fields, "imageUrl")
			ruling.Cards = append(ruling.Cards, Card{Name: name, Type: cardType, OracleText: oracle, ImageURL: image})
		}
		return ruling, true
	}

	return StructuredRuling{}, false
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func arrayField(fields map[string]json.RawMessage, name string) ([]json.RawMessage, bool) {
	raw, ok := fields[name]
	if !ok {
		return nil, false
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return nil, false
	}
	return elems, true
}

func decodeCard(raw json.RawMessage) (Card, bool) {
	fields, ok := decodeObject(raw)
	if !ok {
		return Card{}, false
	}
	var card Card
	card.Name, _ = stringField(fields, "name")
	card.Type, _ = stringField(fields, "type")
	card.OracleText, _ = stringField(fields, "oracleText")
	card.ImageURL, _ = stringField(fields, "imageUrl")
	return card, true
}

// decodeCitations keeps only entries whose kind is "rule" or "ruling".
func decodeCitations(fields map[string]json.RawMessage) []Citation {
	elems, ok := arrayField(fields, "citations")
	if !ok {
		return nil
	}
	citations := make([]Citation, 0, len(elems))
	for _, elem := range elems {
		entry, ok := decodeObject(elem)
		if !ok {
			continue
		}
		kind, _ := stringField(entry, "type")
		if !CitationKind(kind).Valid() {
			continue
		}
		c := Citation{Kind: CitationKind(kind)}
		c.ID, _ = stringField(entry, "id")
		c.Source, _ = stringField(entry, "source")
		c.Text, _ = stringField(entry, "text")
		citations = append(citations, c)
	}
	return citations
}
