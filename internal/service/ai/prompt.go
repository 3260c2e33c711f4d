package ai

import (
	"fmt"
	"strings"
)

// PromptTemplate defines the structure of the answering prompt.
type PromptTemplate struct {
	SystemPrompt string
	StyleHints   []string
	ContextRules []string
}

// DefaultPrompt is the rules-judge prompt used by the reference answerer.
func DefaultPrompt() PromptTemplate {
	return PromptTemplate{
		SystemPrompt: "You are a Magic: The Gathering rules judge. Answer questions about card interactions, " +
			"the comprehensive rules and official rulings accurately and concisely.",
		StyleHints: []string{
			"Write mana costs and symbols in brace notation, for example {2}{R}, {T}, {W/U} or {G/P}.",
			"Use markdown: bold card names, short paragraphs, bullet lists for steps.",
			"Quote rule numbers like 702.19b when they support the answer.",
		},
		ContextRules: []string{
			"If the question is not about Magic, say briefly that you only answer rules questions.",
			"When you are unsure, say so instead of guessing.",
			"Never invent card text; describe the card's behaviour only if you know it.",
		},
	}
}

// rulingInstructions asks for the structured ruling shape when the answer
// is about specific cards.
const rulingInstructions = `When the question names specific cards, you may instead reply with a single JSON object and nothing else:
{"overallExplanation": "...", "cards": [{"name": "...", "type": "...", "oracleText": "...", "imageUrl": ""}], "citations": [{"type": "rule", "id": "...", "source": "...", "text": "..."}]}
Citation type is "rule" for comprehensive rules and "ruling" for official card rulings.`

// BuildSystemPrompt renders t into the system message.
func (t PromptTemplate) BuildSystemPrompt(structured bool) string {
	var b strings.Builder
	b.WriteString(t.SystemPrompt)
	if len(t.StyleHints) > 0 {
		fmt.Fprintf(&b, "\n\nStyle:\n- %s", strings.Join(t.StyleHints, "\n- "))
	}
	if len(t.ContextRules) > 0 {
		fmt.Fprintf(&b, "\n\nRules:\n- %s", strings.Join(t.ContextRules, "\n- "))
	}
	if structured {
		b.WriteString("\n\n")
		b.WriteString(rulingInstructions)
	}
	return b.String()
}
