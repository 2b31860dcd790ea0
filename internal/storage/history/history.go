// Package history keeps a bounded, expiring, ordered log of recent gameplay events
// per room so late joiners can catch up.
package history

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/event"
)

// Cache records and replays per-room event history.
//
// Implementations MUST be safe for concurrent use. Failures are logged, never returned.
type Cache interface {
	// Append records an event of eventType with the current wall-clock time.
	Append(ctx context.Context, roomID, eventType string, payload any)
	// Read returns up to count most recent events for roomID, oldest first.
	Read(ctx context.Context, roomID string, count int) []event.GameEvent
	// IsAvailable reports whether the backing store answers a liveness probe.
	IsAvailable(ctx context.Context) bool
}

// New connects to the configured Redis server, falling back to Noop when the cache is
// disabled or does not answer the initial probe.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Cache.
func New(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) Cache {
	if !cfg.Enabled {
		logger.Info("history cache disabled, events will not be recorded")
		return Noop{}
	}
	c := NewRedisCache(NewRedisClient(cfg), cfg, logger)
	if !c.IsAvailable(ctx) {
		logger.Warn("history cache unreachable, events will not be recorded", zap.String("addr", cfg.Addr))
		_ = c.Close()
		return Noop{}
	}
	logger.Info("history cache connected", zap.String("addr", cfg.Addr))
	return c
}

// Noop is the Cache used when no store is available.
type Noop struct{}

// Append discards the event.
func (Noop) Append(context.Context, string, string, any) {}

// Read always returns an empty history.
func (Noop) Read(context.Context, string, int) []event.GameEvent { return nil }

// IsAvailable always reports false.
func (Noop) IsAvailable(context.Context) bool { return false }
