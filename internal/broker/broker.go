// Package broker publishes gameplay events to an external MQTT broker.
//
// Publishing is best-effort: a publisher never blocks its caller and never reports
// failure back into the broadcast path. When the broker is disabled or unreachable at
// startup, New returns a Noop publisher that satisfies the same contract.
package broker

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/event"
)

// Publisher emits room events under <prefix>/room/<roomId>/<category>.
//
// Implementations MUST be safe for concurrent use.
type Publisher interface {
	// Publish serializes payload and emits it with the category's delivery guarantee.
	// Failures are logged, never returned.
	Publish(roomID string, category event.Category, payload any)
	// Connected reports whether the broker connection is currently open.
	Connected() bool
	// Close releases the broker connection.
	Close()
}

// New connects to the configured broker, falling back to Noop when publishing is
// disabled or the initial connection fails.
//
// Precondition: logger must be non-nil.
// Postcondition: Returns a non-nil Publisher.
func New(cfg config.BrokerConfig, logger *zap.Logger) Publisher {
	if !cfg.Enabled {
		logger.Info("broker disabled, events will not be published")
		return Noop{}
	}
	pub, err := Connect(cfg, logger)
	if err != nil {
		logger.Warn("could not connect to broker, events will be skipped",
			zap.String("url", cfg.URL()),
			zap.Error(err),
		)
		return Noop{}
	}
	return pub
}

// Noop is the Publisher used when no broker is available. Every call is a no-op.
type Noop struct{}

// Publish discards the event.
func (Noop) Publish(string, event.Category, any) {}

// Connected always reports false.
func (Noop) Connected() bool { return false }

// Close does nothing.
func (Noop) Close() {}
