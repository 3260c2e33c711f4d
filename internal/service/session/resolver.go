// Package session 解析关联一次对话中所有消息的会话 id。
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
)

// DefaultStorageKey 持久化会话 id 使用的 key
const DefaultStorageKey = "mtg_session_id"

// Storage 单个客户端范围内的持久化键值存储，例如浏览器 cookie 或用户配置目录中的文件。
type Storage interface {
	// Get 在 key 不存在时返回 ""。
	Get(key string) (string, error)
	Set(key, value string) error
}

// Resolver 生成稳定的会话 id。解析不会失败，存储错误只记录日志并改用新生成的 id。
type Resolver struct {
	storage  Storage
	key      string
	generate func() string
	logger   *zap.Logger

	mu     sync.Mutex
	cached string
}

// Option 配置 Resolver
type Option func(*Resolver)

// WithKey 覆盖存储 key
func WithKey(key string) Option {
	return func(r *Resolver) {
		if key != "" {
			r.key = key
		}
	}
}

// WithGenerator 覆盖 id 生成函数
func WithGenerator(generate func() string) Option {
	return func(r *Resolver) {
		if generate != nil {
			r.generate = generate
		}
	}
}

// WithLogger 设置记录存储错误的日志
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver 创建基于 storage 的解析器
func NewResolver(storage Storage, opts ...Option) *Resolver {
	r := &Resolver{
		storage:  storage,
		key:      DefaultStorageKey,
		generate: uuid.NewString,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve 按优先级返回显式传入的 id、已持久化的 id，或新生成并立即持久化的 id。
func (r *Resolver) Resolve(explicit string) chat.Session {
	if id := strings.TrimSpace(explicit); id != "" {
		return chat.Session{ID: id}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != "" {
		return chat.Session{ID: r.cached}
	}

	if r.storage != nil {
		stored, err := r.storage.Get(r.key)
		if err != nil {
			r.logger.Warn("read persisted session id", zap.String("key", r.key), zap.Error(err))
		} else if id := strings.TrimSpace(stored); id != "" {
			r.cached = id
			return chat.Session{ID: id}
		}
	}

	id := r.generate()
	if r.storage != nil {
		if err := r.storage.Set(r.key, id); err != nil {
			r.logger.Warn("persist session id", zap.String("key", r.key), zap.Error(err))
		}
	}
	r.logger.Debug("generated session id", zap.String("session_id", id))
	r.cached = id
	return chat.Session{ID: id}
}
