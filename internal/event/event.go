// Package event defines the gameplay event records exchanged between the room
// coordinator, the pub/sub publisher, and the per-room history cache.
package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Guarantee is the delivery guarantee requested from the broker.
type Guarantee byte

const (
	// AtMostOnce is fire-and-forget; loss is tolerated (MQTT QoS 0).
	AtMostOnce Guarantee = 0
	// AtLeastOnce may deliver duplicates but never loses an acknowledged publish (MQTT QoS 1).
	AtLeastOnce Guarantee = 1
	// EffectivelyOnce must survive retries without loss or duplication (MQTT QoS 2).
	EffectivelyOnce Guarantee = 2
)

// String returns the guarantee name.
func (g Guarantee) String() string {
	switch g {
	case AtMostOnce:
		return "at-most-once"
	case AtLeastOnce:
		return "at-least-once"
	case EffectivelyOnce:
		return "effectively-once"
	default:
		return fmt.Sprintf("guarantee(%d)", byte(g))
	}
}

// Category identifies a published event stream. The category fixes both the topic
// suffix and the delivery guarantee; callers cannot choose a guarantee per call.
type Category struct {
	// Path is the topic suffix below <prefix>/room/<roomId>/.
	Path string
	// HistoryType is the event type recorded in the room history.
	HistoryType string
	// Guarantee is the broker delivery guarantee for this category.
	Guarantee Guarantee
}

var (
	PowerUpSpawned   = Category{Path: "powerup/spawned", HistoryType: "powerup_spawned", Guarantee: AtLeastOnce}
	PowerUpCollected = Category{Path: "powerup/collected", HistoryType: "powerup_collected", Guarantee: AtLeastOnce}
	Collision        = Category{Path: "collision", HistoryType: "collision", Guarantee: AtMostOnce}
	GameEnd          = Category{Path: "game/end", HistoryType: "game_end", Guarantee: EffectivelyOnce}
	Chat             = Category{Path: "chat", HistoryType: "chat", Guarantee: AtLeastOnce}
)

// Categories lists every published category.
func Categories() []Category {
	return []Category{PowerUpSpawned, PowerUpCollected, Collision, GameEnd, Chat}
}

// Topic builds the hierarchical topic <prefix>/room/<roomID>/<category path>.
//
// Precondition: prefix and roomID must be non-empty.
func Topic(prefix, roomID string, c Category) string {
	var b strings.Builder
	b.Grow(len(prefix) + len(roomID) + len(c.Path) + 8)
	b.WriteString(prefix)
	b.WriteString("/room/")
	b.WriteString(roomID)
	b.WriteByte('/')
	b.WriteString(c.Path)
	return b.String()
}

// GameEvent is one entry in a room's ordered history.
type GameEvent struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"roomId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// NewGameEvent serializes payload and stamps the event with at.
//
// Postcondition: Returns a GameEvent with Timestamp in unix milliseconds, or a marshal error.
func NewGameEvent(roomID, eventType string, payload any, at time.Time) (GameEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return GameEvent{}, fmt.Errorf("marshaling %s payload: %w", eventType, err)
	}
	return GameEvent{
		Type:      eventType,
		RoomID:    roomID,
		Payload:   raw,
		Timestamp: at.UnixMilli(),
	}, nil
}

// Millis returns t as unix milliseconds, the timestamp unit of every payload.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
