package history

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/event"
)

func testCacheConfig(addr string) config.CacheConfig {
	return config.CacheConfig{
		Enabled:     true,
		Addr:        addr,
		KeyPrefix:   "battletanks",
		MaxHistory:  50,
		TTL:         2 * time.Hour,
		ReplayCount: 50,
		DialTimeout: time.Second,
	}
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := testCacheConfig(mr.Addr())
	c := NewRedisCache(NewRedisClient(cfg), cfg, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestRedisCache_Key(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Equal(t, "battletanks:room:5:events", c.Key("5"))
}

func TestRedisCache_AppendAndRead(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	c.Append(ctx, "5", event.Chat.HistoryType, event.ChatEvent{RoomID: "5", Sender: "A", Message: "hi"})

	events := c.Read(ctx, "5", 10)
	require.Len(t, events, 1)
	assert.Equal(t, "chat", events[0].Type)
	assert.Equal(t, "5", events[0].RoomID)
	assert.Equal(t, int64(1700000000000), events[0].Timestamp)

	var chat event.ChatEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &chat))
	assert.Equal(t, "hi", chat.Message)
}

func TestRedisCache_CapsAtMaxHistory(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		c.Append(ctx, "5", "collision", event.CollisionEvent{Damage: i})
	}

	list, err := mr.List(c.Key("5"))
	require.NoError(t, err)
	assert.Len(t, list, 50)

	events := c.Read(ctx, "5", 100)
	require.Len(t, events, 50)
	for i, evt := range events {
		var col event.CollisionEvent
		require.NoError(t, json.Unmarshal(evt.Payload, &col))
		assert.Equal(t, i+10, col.Damage, "oldest entries are evicted first")
	}
}

func TestRedisCache_ReadReturnsMostRecent(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.Append(ctx, "5", "chat", event.ChatEvent{Message: fmt.Sprintf("m%d", i)})
	}

	events := c.Read(ctx, "5", 2)
	require.Len(t, events, 2)
	var first, second event.ChatEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &first))
	require.NoError(t, json.Unmarshal(events[1].Payload, &second))
	assert.Equal(t, "m3", first.Message)
	assert.Equal(t, "m4", second.Message)
}

func TestRedisCache_AppendSetsTTL(t *testing.T) {
	c, mr := newTestCache(t)
	c.Append(context.Background(), "5", "chat", event.ChatEvent{})
	assert.Equal(t, 2*time.Hour, mr.TTL(c.Key("5")))
}

func TestRedisCache_HistoryExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.Append(ctx, "5", "chat", event.ChatEvent{})

	mr.FastForward(2*time.Hour + time.Second)
	assert.Empty(t, c.Read(ctx, "5", 10))
}

func TestRedisCache_RoomsAreIsolated(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.Append(ctx, "5", "chat", event.ChatEvent{})
	assert.Len(t, c.Read(ctx, "5", 10), 1)
	assert.Empty(t, c.Read(ctx, "6", 10))
}

func TestRedisCache_ReadNonPositiveCount(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.Append(ctx, "5", "chat", event.ChatEvent{})
	assert.Empty(t, c.Read(ctx, "5", 0))
	assert.Empty(t, c.Read(ctx, "5", -3))
}

func TestRedisCache_SkipsUndecodableEntries(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.Append(ctx, "5", "chat", event.ChatEvent{Message: "ok"})
	_, err := mr.RPush(c.Key("5"), "{not json")
	require.NoError(t, err)

	events := c.Read(ctx, "5", 10)
	require.Len(t, events, 1)
	assert.Equal(t, "chat", events[0].Type)
}

func TestRedisCache_UnavailableStore(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	assert.False(t, c.IsAvailable(ctx))
	c.Append(ctx, "5", "chat", event.ChatEvent{})
	assert.Empty(t, c.Read(ctx, "5", 10))
}

func TestNew_FallsBackToNoop(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	assert.IsType(t, Noop{}, New(ctx, config.CacheConfig{Enabled: false}, logger))

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	assert.IsType(t, Noop{}, New(ctx, testCacheConfig(addr), logger))
}

func TestNew_ConnectsToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(context.Background(), testCacheConfig(mr.Addr()), zaptest.NewLogger(t))
	require.IsType(t, &RedisCache{}, c)
	assert.True(t, c.IsAvailable(context.Background()))
	_ = c.(*RedisCache).Close()
}

func TestNoop(t *testing.T) {
	var c Cache = Noop{}
	ctx := context.Background()
	c.Append(ctx, "5", "chat", nil)
	assert.Empty(t, c.Read(ctx, "5", 10))
	assert.False(t, c.IsAvailable(ctx))
}

// Property: after any number of appends the stored history holds min(n, cap) entries.
func TestPropertyHistoryNeverExceedsCap(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zaptest.NewLogger(t)
	rapid.Check(t, func(rt *rapid.T) {
		mr.FlushAll()
		maxHistory := rapid.IntRange(1, 20).Draw(rt, "max")
		n := rapid.IntRange(0, 40).Draw(rt, "appends")

		cfg := testCacheConfig(mr.Addr())
		cfg.MaxHistory = maxHistory
		c := NewRedisCache(NewRedisClient(cfg), cfg, logger)
		defer func() { _ = c.Close() }()

		ctx := context.Background()
		for i := 0; i < n; i++ {
			c.Append(ctx, "r", "collision", event.CollisionEvent{Damage: i})
		}
		got := len(c.Read(ctx, "r", 1000))
		want := min(n, maxHistory)
		if got != want {
			rt.Fatalf("history length = %d, want %d", got, want)
		}
	})
}
