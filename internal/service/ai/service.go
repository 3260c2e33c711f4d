// Package ai implements a reference answering service backed by an eino
// chain, speaking the same wire contract as the production workflow.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/config"
	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
	"github.com/zhouzirui/magic-chat/backend/internal/service/chat/store"
)

// Service encapsulates AI-powered answering.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	store        store.Store
	prompt       PromptTemplate
	historyLimit int
	structured   bool
	logger       *zap.Logger
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistoryLimit bounds how many previous turns are sent to the model.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithStructuredRulings lets the model reply with the structured ruling shape.
func WithStructuredRulings(enabled bool) Option {
	return func(s *Service) { s.structured = enabled }
}

// WithPrompt replaces DefaultPrompt.
func WithPrompt(p PromptTemplate) Option {
	return func(s *Service) { s.prompt = p }
}

// NewService creates the answerer on top of the configured Ark model.
func NewService(ctx context.Context, cfg config.AIConfig, st store.Store, opts ...Option) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	opts = append([]Option{WithHistoryLimit(cfg.HistoryLimit)}, opts...)
	return NewServiceWithModel(ctx, chatModel, st, opts...)
}

// NewServiceWithModel creates the answerer on top of chatModel.
func NewServiceWithModel(ctx context.Context, chatModel model.ChatModel, st store.Store, opts ...Option) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	if st == nil {
		st = store.NewMemory()
	}
	s := &Service{
		chain:        runnable,
		store:        st,
		prompt:       DefaultPrompt(),
		historyLimit: 10,
		logger:       zap.NewNop(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Answer replies to message within sessionID and records both turns.
func (s *Service) Answer(ctx context.Context, sessionID, message string) (chat.Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return chat.Turn{}, fmt.Errorf("message is required")
	}

	history, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("load history: %w", err)
	}

	input := map[string]any{
		"system":  s.prompt.BuildSystemPrompt(s.structured),
		"history": buildHistoryMessages(history, s.historyLimit),
		"query":   message,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return chat.Turn{}, fmt.Errorf("failed to run AI chain: %w", err)
	}

	now := s.now()
	reply := chat.Turn{
		ID:        uuid.NewString(),
		Role:      chat.RoleAssistant,
		Payload:   payloadFromReply(response.Content),
		CreatedAt: now,
	}

	history = append(history, chat.NewUserTurn(uuid.NewString(), message, now), reply)
	if err := s.store.Put(ctx, sessionID, history); err != nil {
		s.logger.Warn("failed to save answer history", zap.String("session_id", sessionID), zap.Error(err))
	}

	s.logger.Info("generated answer",
		zap.String("session_id", sessionID),
		zap.String("kind", string(reply.Payload.Kind())),
		zap.Int("length", len(response.Content)))
	return reply, nil
}

// buildHistoryMessages converts the last limit turns into model messages.
func buildHistoryMessages(turns []chat.Turn, limit int) []*schema.Message {
	if len(turns) == 0 {
		return nil
	}

	startIdx := 0
	if limit > 0 && len(turns) > limit {
		startIdx = len(turns) - limit
	}

	history := make([]*schema.Message, 0, len(turns)-startIdx)
	for _, t := range turns[startIdx:] {
		text := turnText(t)
		switch t.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(text))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(text, nil))
		}
	}
	return history
}

func turnText(t chat.Turn) string {
	switch p := t.Payload.(type) {
	case chat.PlainText:
		return p.Text
	case chat.MarkdownBody:
		return p.Markdown
	case chat.StructuredRuling:
		return p.OverallExplanation
	default:
		return ""
	}
}

// payloadFromReply classifies the model output. A reply that is exactly a
// structured ruling object becomes one; anything else is markdown.
func payloadFromReply(content string) chat.Payload {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "```"), "```")
	trimmed = strings.TrimSpace(trimmed)

	if strings.HasPrefix(trimmed, "{") {
		if ruling, ok := chat.ClassifyContent(json.RawMessage(trimmed)); ok {
			return ruling
		}
	}
	return chat.MarkdownBody{Markdown: content}
}
