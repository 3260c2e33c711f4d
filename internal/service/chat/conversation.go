package chat

import (
	"errors"

	"github.com/google/uuid"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
)

// ErrDuplicateTurn 消息 id 已存在于对话中
var ErrDuplicateTurn = errors.New("turn already in conversation")

// Conversation 只追加的有序消息列表，非并发安全。
type Conversation struct {
	turns []chat.Turn
	ids   map[string]struct{}
}

// NewConversation 用已有消息初始化对话，跳过重复 id
func NewConversation(turns ...chat.Turn) *Conversation {
	c := &Conversation{
		turns: make([]chat.Turn, 0, len(turns)+4),
		ids:   make(map[string]struct{}, len(turns)),
	}
	for _, t := range turns {
		_, _ = c.Append(t)
	}
	return c
}

// Append 追加一条消息，缺少 id 时生成新 id。
func (c *Conversation) Append(turn chat.Turn) (chat.Turn, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if _, exists := c.ids[turn.ID]; exists {
		return chat.Turn{}, ErrDuplicateTurn
	}
	if turn.Payload == nil {
		turn.Payload = chat.PlainText{}
	}
	c.ids[turn.ID] = struct{}{}
	c.turns = append(c.turns, turn)
	return turn, nil
}

// Turns 按插入顺序返回消息副本
func (c *Conversation) Turns() []chat.Turn {
	return append([]chat.Turn(nil), c.turns...)
}

// Len 返回消息数量
func (c *Conversation) Len() int {
	return len(c.turns)
}
