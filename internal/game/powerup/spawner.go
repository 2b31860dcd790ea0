// Package powerup places collectible power-ups in rooms and announces them.
package powerup

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/broker"
	"github.com/cory-johannsen/battletanks/internal/event"
	"github.com/cory-johannsen/battletanks/internal/game/dice"
	"github.com/cory-johannsen/battletanks/internal/storage/history"
)

// initialPositions are the fixed pixel coordinates of the opening power-ups.
var initialPositions = [3][2]float64{
	{80, 80},
	{280, 80},
	{160, 200},
}

// Spawner creates power-up records, publishes them, and records them in room history.
type Spawner struct {
	publisher broker.Publisher
	history   history.Cache
	src       dice.Source
	logger    *zap.Logger
	now       func() time.Time
}

// NewSpawner creates a Spawner.
//
// Precondition: every argument must be non-nil.
func NewSpawner(publisher broker.Publisher, cache history.Cache, src dice.Source, logger *zap.Logger) *Spawner {
	return &Spawner{
		publisher: publisher,
		history:   cache,
		src:       src,
		logger:    logger,
		now:       time.Now,
	}
}

// Option overrides a randomly chosen attribute of a spawned power-up.
type Option func(*event.PowerUp)

// WithType fixes the power-up type.
func WithType(t string) Option {
	return func(p *event.PowerUp) { p.Type = t }
}

// WithID fixes the power-up id.
func WithID(id string) Option {
	return func(p *event.PowerUp) { p.ID = id }
}

// SpawnInitial places the three opening power-ups for a freshly started match.
//
// Postcondition: Returns ids pu-initial-0..2 with types in rotation order, each
// published and recorded.
func (s *Spawner) SpawnInitial(ctx context.Context, roomID string) []event.PowerUp {
	spawned := make([]event.PowerUp, 0, len(initialPositions))
	for i, pos := range initialPositions {
		spawned = append(spawned, s.SpawnRandom(ctx, roomID, pos[0], pos[1],
			WithID("pu-initial-"+strconv.Itoa(i)),
			WithType(event.PowerUpRotation[i%len(event.PowerUpRotation)]),
		))
	}
	return spawned
}

// SpawnRandom places one power-up at (x, y). Unless overridden, the type is drawn
// uniformly from the rotation and the id is "pu-" followed by a random UUID.
//
// Postcondition: The power-up is published and recorded; failures are logged only.
func (s *Spawner) SpawnRandom(ctx context.Context, roomID string, x, y float64, opts ...Option) event.PowerUp {
	p := event.PowerUp{
		X:         x,
		Y:         y,
		RoomID:    roomID,
		Timestamp: event.Millis(s.now()),
	}
	for _, opt := range opts {
		opt(&p)
	}
	if p.Type == "" {
		p.Type = dice.Pick(s.src, event.PowerUpRotation)
	}
	if p.ID == "" {
		p.ID = "pu-" + uuid.NewString()
	}

	s.publisher.Publish(roomID, event.PowerUpSpawned, p)
	s.history.Append(ctx, roomID, event.PowerUpSpawned.HistoryType, p)

	s.logger.Debug("power-up spawned",
		zap.String("room", roomID),
		zap.String("id", p.ID),
		zap.String("type", p.Type),
		zap.Float64("x", x),
		zap.Float64("y", y),
	)
	return p
}
