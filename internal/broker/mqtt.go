package broker

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/event"
)

// disconnectQuiesce is how long, in milliseconds, Close lets in-flight work drain.
const disconnectQuiesce = 250

// MQTTPublisher publishes events through a paho MQTT client.
type MQTTPublisher struct {
	client         mqtt.Client
	prefix         string
	publishTimeout time.Duration
	logger         *zap.Logger
	pending        sync.WaitGroup
}

// Connect dials the broker described by cfg.
//
// Precondition: cfg must be valid and enabled; logger must be non-nil.
// Postcondition: Returns a connected MQTTPublisher or a non-nil error.
func Connect(cfg config.BrokerConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL()).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.Info("broker connected", zap.String("url", cfg.URL()))
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("broker connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to broker %s: timed out after %s", cfg.URL(), cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("connecting to broker %s: %w", cfg.URL(), err)
	}

	return NewMQTTPublisher(client, cfg.TopicPrefix, cfg.PublishTimeout, logger), nil
}

// NewMQTTPublisher wraps an already-configured client.
//
// Precondition: client, logger must be non-nil; prefix must be non-empty.
func NewMQTTPublisher(client mqtt.Client, prefix string, publishTimeout time.Duration, logger *zap.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		client:         client,
		prefix:         prefix,
		publishTimeout: publishTimeout,
		logger:         logger,
	}
}

// Publish emits payload on the category topic for roomID.
//
// Postcondition: Returns immediately. At-most-once publishes are not tracked;
// acknowledgements for stronger guarantees are awaited in the background and
// failures are logged.
func (p *MQTTPublisher) Publish(roomID string, category event.Category, payload any) {
	topic := event.Topic(p.prefix, roomID, category)

	if !p.client.IsConnectionOpen() {
		p.logger.Warn("broker not connected, skipping publish", zap.String("topic", topic))
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshaling publish payload", zap.String("topic", topic), zap.Error(err))
		return
	}

	tok := p.client.Publish(topic, byte(category.Guarantee), false, data)
	if category.Guarantee == event.AtMostOnce {
		// Loss-tolerant stream; the token result is intentionally discarded.
		p.logger.Debug("published", zap.String("topic", topic), zap.Stringer("guarantee", category.Guarantee))
		return
	}

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		p.awaitAck(topic, category.Guarantee, tok)
	}()
}

func (p *MQTTPublisher) awaitAck(topic string, g event.Guarantee, tok mqtt.Token) {
	if !tok.WaitTimeout(p.publishTimeout) {
		p.logger.Warn("publish not acknowledged",
			zap.String("topic", topic),
			zap.Stringer("guarantee", g),
			zap.Duration("timeout", p.publishTimeout),
		)
		return
	}
	if err := tok.Error(); err != nil {
		p.logger.Warn("publish failed",
			zap.String("topic", topic),
			zap.Stringer("guarantee", g),
			zap.Error(err),
		)
		return
	}
	p.logger.Debug("published", zap.String("topic", topic), zap.Stringer("guarantee", g))
}

// Connected reports whether the client connection is open.
func (p *MQTTPublisher) Connected() bool {
	return p.client.IsConnectionOpen()
}

// Close waits for outstanding acknowledgements and disconnects.
//
// Postcondition: No background acknowledgement goroutines remain.
func (p *MQTTPublisher) Close() {
	p.pending.Wait()
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesce)
	}
}
