package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/magic-chat/backend/internal/model/chat"
)

func TestNewStoreTypes(t *testing.T) {
	s, err := New(TypeMemory)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = New(TypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New("sqlite")
	assert.ErrorIs(t, err, ErrInvalidStoreType)

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	s, err = New(TypeRedis, WithRedisClient(client), WithRedisTTL(time.Minute), WithKeyPrefix("t:"))
	require.NoError(t, err)
	rs, ok := s.(*redisStore)
	require.True(t, ok)
	assert.Equal(t, "t:abc", rs.key("abc"))
	assert.Equal(t, time.Minute, rs.ttl)
	_ = s.Close()
}

func TestMemoryGetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	turns, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, turns)

	in := []chat.Turn{chat.NewUserTurn("u1", "hello", time.Now())}
	require.NoError(t, s.Put(ctx, "s1", in))

	// Mutating the caller's slice does not leak into the store.
	in[0].ID = "changed"

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].ID)
}

func newRedisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := New(TypeRedis, WithRedisClient(client), WithRedisTTL(ttl), WithKeyPrefix("transcript:"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return mr, s
}

func TestRedisGetMissingKey(t *testing.T) {
	_, s := newRedisStore(t, time.Hour)

	turns, err := s.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, turns)
}

func TestRedisRoundTripKeepsPayloadsAndRoles(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedisStore(t, time.Hour)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	ruling := chat.StructuredRuling{
		OverallExplanation: "Deathtouch applies to {B} damage.",
		Cards: []chat.Card{{
			Name:       "Typhoid Rats",
			Type:       "Creature - Rat",
			OracleText: "Deathtouch",
			ImageURL:   "https://img.example/rats.jpg",
		}},
		Citations: []chat.Citation{{Kind: chat.CitationRule, ID: "702.2b", Text: "Any damage..."}},
	}
	in := []chat.Turn{
		chat.NewUserTurn("u1", "Does {B} deathtouch work?", at),
		{ID: "a1", Role: chat.RoleAssistant, Payload: chat.MarkdownBody{Markdown: "**Yes**, pay {1}{B}."}, CreatedAt: at.Add(time.Second)},
		{ID: "a2", Role: chat.RoleAssistant, Payload: ruling, CreatedAt: at.Add(2 * time.Second)},
		{ID: "a3", Role: chat.RoleAssistant, Payload: chat.PlainText{Text: "legacy reply"}, CreatedAt: at.Add(3 * time.Second)},
	}
	require.NoError(t, s.Put(ctx, "s1", in))
	assert.True(t, mr.Exists("transcript:s1"))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, len(in))
	for i := range in {
		assert.Equal(t, in[i].ID, got[i].ID)
		assert.Equal(t, in[i].Role, got[i].Role, "role of %s", in[i].ID)
		assert.Equal(t, in[i].Payload, got[i].Payload, "payload of %s", in[i].ID)
		assert.True(t, in[i].CreatedAt.Equal(got[i].CreatedAt), "created at of %s", in[i].ID)
	}

	other, err := s.Get(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestRedisGetRefreshesTTL(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedisStore(t, time.Hour)

	require.NoError(t, s.Put(ctx, "s1", []chat.Turn{chat.NewUserTurn("u1", "hi", time.Now().UTC())}))
	assert.Equal(t, time.Hour, mr.TTL("transcript:s1"))

	mr.FastForward(40 * time.Minute)
	assert.Equal(t, 20*time.Minute, mr.TTL("transcript:s1"))

	_, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("transcript:s1"))

	mr.FastForward(2 * time.Hour)
	turns, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, turns)
}

func TestRedisPutEmptyTranscript(t *testing.T) {
	ctx := context.Background()
	mr, s := newRedisStore(t, time.Hour)

	require.NoError(t, s.Put(ctx, "s1", nil))
	raw, err := mr.Get("transcript:s1")
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	turns, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}
