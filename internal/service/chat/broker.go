package chat

import (
	"sync"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
)

// Broker 将新追加的消息分发给会话的订阅者。投递不阻塞，处理不及的订阅者会丢失事件。
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []chat.Turn]struct{}
	buffer int
}

// NewBroker 创建分发器，每个订阅通道缓冲 buffer 个事件
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 8
	}
	return &Broker{
		subs:   make(map[string]map[chan []chat.Turn]struct{}),
		buffer: buffer,
	}
}

// Subscribe 订阅 sessionID，返回的函数用于取消订阅并关闭通道。
func (b *Broker) Subscribe(sessionID string) (<-chan []chat.Turn, func()) {
	ch := make(chan []chat.Turn, b.buffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan []chat.Turn]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[sessionID], ch)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
		})
	}
}

// Publish 向 sessionID 的所有订阅者投递消息
func (b *Broker) Publish(sessionID string, turns []chat.Turn) {
	if b == nil || len(turns) == 0 {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[sessionID] {
		select {
		case ch <- turns:
		default:
		}
	}
}

// Subscribers 返回 sessionID 的订阅者数量
func (b *Broker) Subscribers(sessionID string) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
