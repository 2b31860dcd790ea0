package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/event"
)

// RedisCache stores each room's history as a capped Redis list.
type RedisCache struct {
	client     *redis.Client
	prefix     string
	maxHistory int
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewRedisClient builds a go-redis client from cfg. No connection is made until first use.
func NewRedisClient(cfg config.CacheConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
}

// NewRedisCache wraps client using the key prefix, cap, and TTL from cfg.
//
// Precondition: client and logger must be non-nil; cfg.MaxHistory > 0.
func NewRedisCache(client *redis.Client, cfg config.CacheConfig, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client:     client,
		prefix:     cfg.KeyPrefix,
		maxHistory: cfg.MaxHistory,
		ttl:        cfg.TTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Key returns the list key holding roomID's history.
func (c *RedisCache) Key(roomID string) string {
	return c.prefix + ":room:" + roomID + ":events"
}

// Append pushes the event, trims the list to the newest maxHistory entries, and refreshes
// the expiry, all in a single MULTI/EXEC.
//
// Postcondition: The list never holds more than maxHistory entries.
func (c *RedisCache) Append(ctx context.Context, roomID, eventType string, payload any) {
	evt, err := event.NewGameEvent(roomID, eventType, payload, c.now())
	if err != nil {
		c.logger.Error("building history event", zap.String("room", roomID), zap.Error(err))
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		c.logger.Error("marshaling history event", zap.String("room", roomID), zap.Error(err))
		return
	}

	key := c.Key(roomID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-c.maxHistory), -1)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn("appending history event",
			zap.String("room", roomID),
			zap.String("type", eventType),
			zap.Error(err),
		)
	}
}

// Read returns up to count of the most recent events, oldest first.
//
// Postcondition: Returns an empty slice for count <= 0, an unknown room, or any store
// failure. Entries that fail to decode are skipped.
func (c *RedisCache) Read(ctx context.Context, roomID string, count int) []event.GameEvent {
	if count <= 0 {
		return nil
	}
	raw, err := c.client.LRange(ctx, c.Key(roomID), int64(-count), -1).Result()
	if err != nil {
		c.logger.Warn("reading history", zap.String("room", roomID), zap.Error(err))
		return nil
	}

	events := make([]event.GameEvent, 0, len(raw))
	for _, entry := range raw {
		var evt event.GameEvent
		if err := json.Unmarshal([]byte(entry), &evt); err != nil {
			c.logger.Debug("skipping undecodable history entry", zap.String("room", roomID), zap.Error(err))
			continue
		}
		events = append(events, evt)
	}
	return events
}

// IsAvailable pings the server.
func (c *RedisCache) IsAvailable(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

// Close releases the client's connections.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
