// Package store persists conversation transcripts keyed by session id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
)

var (
	ErrInvalidConfig    = errors.New("invalid store configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
)

// Store keeps the ordered turns of each session.
type Store interface {
	// Get returns the turns of sessionID, or nil when there are none.
	Get(ctx context.Context, sessionID string) ([]chat.Turn, error)
	// Put replaces the turns of sessionID.
	Put(ctx context.Context, sessionID string, turns []chat.Turn) error
	// Close releases any resources.
	Close() error
}

// Type selects a driver.
type Type string

const (
	TypeMemory Type = "memory"
	TypeRedis  Type = "redis"
)

// Option configures a store.
type Option func(*config)

type config struct {
	redisClient *redis.Client
	redisTTL    time.Duration
	keyPrefix   string
}

// WithRedisClient sets the client used by the redis driver.
func WithRedisClient(client *redis.Client) Option {
	return func(c *config) {
		c.redisClient = client
	}
}

// WithRedisTTL sets how long an idle transcript is kept.
func WithRedisTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.redisTTL = ttl
	}
}

// WithKeyPrefix namespaces redis keys.
func WithKeyPrefix(prefix string) Option {
	return func(c *config) {
		c.keyPrefix = prefix
	}
}

// New creates a store of the given type.
func New(storeType Type, opts ...Option) (Store, error) {
	cfg := &config{keyPrefix: "transcript:"}
	for _, opt := range opts {
		opt(cfg)
	}

	switch storeType {
	case TypeMemory, "":
		return NewMemory(), nil
	case TypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := cfg.redisTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		return &redisStore{client: cfg.redisClient, ttl: ttl, prefix: cfg.keyPrefix}, nil
	default:
		return nil, ErrInvalidStoreType
	}
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string][]chat.Turn
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]chat.Turn)}
}

// Get implements Store.
func (s *Memory) Get(_ context.Context, sessionID string) ([]chat.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return append([]chat.Turn(nil), turns...), nil
}

// Put implements Store.
func (s *Memory) Put(_ context.Context, sessionID string, turns []chat.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append([]chat.Turn(nil), turns...)
	return nil
}

// Close implements Store.
func (s *Memory) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string][]chat.Turn)
	return nil
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func (s *redisStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Get implements Store.
func (s *redisStore) Get(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	key := s.key(sessionID)
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var turns []chat.Turn
	if err := json.Unmarshal(val, &turns); err != nil {
		return nil, err
	}

	// Refresh TTL on read
	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return turns, nil
}

// Put implements Store.
func (s *redisStore) Put(ctx context.Context, sessionID string, turns []chat.Turn) error {
	if turns == nil {
		turns = []chat.Turn{}
	}
	val, err := json.Marshal(turns)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sessionID), val, s.ttl).Err()
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}
