// Package gameserver coordinates live rooms: it routes gameplay actions between the
// connections in a room and fans their side effects out to the broker, the history
// cache, the power-up spawner, and persisted occupancy.
package gameserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/broker"
	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/event"
	"github.com/cory-johannsen/battletanks/internal/game/dice"
	"github.com/cory-johannsen/battletanks/internal/game/powerup"
	"github.com/cory-johannsen/battletanks/internal/game/session"
	"github.com/cory-johannsen/battletanks/internal/storage/history"
)

// OccupancyReconciler applies a departure to persisted room state.
type OccupancyReconciler interface {
	OnLeave(ctx context.Context, roomID string)
}

// Deps bundles the collaborators of a Coordinator.
type Deps struct {
	Registry   *session.Registry
	Hub        *Hub
	Publisher  broker.Publisher
	History    history.Cache
	Spawner    *powerup.Spawner
	Reconciler OccupancyReconciler
	Dice       dice.Source
}

// Coordinator implements the per-connection room state machine
// Unjoined -> Joined(room) -> Left | Disconnected.
//
// Every operation is safe for concurrent use across connections. Actions from one
// connection must be submitted in order by its transport. Operations never return
// errors: unknown connections and malformed input are dropped, and external
// failures are logged by the collaborator that hit them.
type Coordinator struct {
	registry   *session.Registry
	hub        *Hub
	publisher  broker.Publisher
	history    history.Cache
	spawner    *powerup.Spawner
	reconciler OccupancyReconciler
	dice       dice.Source
	cfg        config.GameConfig
	replay     int
	logger     *zap.Logger
	now        func() time.Time

	// left holds connections that left their room and may not join again
	// until the transport disconnects.
	left    *xsync.MapOf[string, struct{}]
	replays sync.WaitGroup
}

// NewCoordinator creates a Coordinator.
//
// Precondition: every field of deps and logger must be non-nil.
func NewCoordinator(deps Deps, cfg config.GameConfig, replayCount int, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		registry:   deps.Registry,
		hub:        deps.Hub,
		publisher:  deps.Publisher,
		history:    deps.History,
		spawner:    deps.Spawner,
		reconciler: deps.Reconciler,
		dice:       deps.Dice,
		cfg:        cfg,
		replay:     replayCount,
		logger:     logger,
		now:        time.Now,
		left:       xsync.NewMapOf[string, struct{}](),
	}
}

// OnConnected attaches an outbound entity for a new transport connection and greets it.
//
// Postcondition: The returned entity's first notification is ConnectionEstablished(connID).
func (c *Coordinator) OnConnected(connID string) *session.BridgeEntity {
	entity := c.hub.Attach(connID)
	c.hub.SendTo(connID, session.NewNotification(TargetConnectionEstablished, connID))
	c.logger.Info("client connected", zap.String("conn", connID))
	return entity
}

// Join places connID in roomID.
//
// Postcondition: The caller receives ExistingPlayers for every other member; the other
// members receive PlayerJoined; recent room history follows asynchronously if any exists.
// A connection already joined elsewhere leaves its old room first. Joining the room
// the connection is already in only refreshes its position.
func (c *Coordinator) Join(ctx context.Context, connID, playerID, playerName, roomID string, x, y float64) {
	if connID == "" || roomID == "" {
		c.logger.Debug("join dropped: missing connection or room", zap.String("conn", connID))
		return
	}
	if _, gone := c.left.Load(connID); gone {
		c.logger.Debug("join dropped: connection already left", zap.String("conn", connID))
		return
	}
	if prev, ok := c.registry.Lookup(connID); ok {
		if prev.RoomID == roomID {
			c.registry.UpdatePosition(connID, x, y)
			c.logger.Debug("join repeated: position refreshed",
				zap.String("conn", connID),
				zap.String("room", roomID),
			)
			return
		}
		c.leaveRoom(ctx, connID)
	}

	c.registry.Register(connID, playerID, playerName, roomID, x, y)
	c.hub.AddToGroup(roomID, connID)

	others := make([]PlayerSnapshot, 0)
	for _, conn := range c.registry.InRoom(roomID) {
		if conn.ConnID == connID {
			continue
		}
		others = append(others, PlayerSnapshot{
			PlayerID:   conn.PlayerID,
			PlayerName: conn.PlayerName,
			X:          conn.X,
			Y:          conn.Y,
		})
	}
	c.hub.SendTo(connID, session.NewNotification(TargetExistingPlayers, others))
	c.hub.SendGroup(roomID, session.NewNotification(TargetPlayerJoined, playerID, playerName, x, y), connID)

	c.logger.Info("player joined room",
		zap.String("conn", connID),
		zap.String("player", playerID),
		zap.String("room", roomID),
		zap.Int("others", len(others)),
	)

	c.replays.Add(1)
	go func() {
		defer c.replays.Done()
		c.replayHistory(ctx, connID, roomID)
	}()
}

func (c *Coordinator) replayHistory(ctx context.Context, connID, roomID string) {
	events := c.history.Read(ctx, roomID, c.replay)
	if len(events) == 0 {
		return
	}
	// The read may outlast the membership it was started for.
	if conn, ok := c.registry.Lookup(connID); !ok || conn.RoomID != roomID {
		c.logger.Debug("history replay dropped: connection left room",
			zap.String("conn", connID),
			zap.String("room", roomID),
		)
		return
	}
	c.hub.SendTo(connID, session.NewNotification(TargetRoomHistory, events))
}

// movePayload accepts a position either at the top level or nested under "position".
type movePayload struct {
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Position *struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	} `json:"position"`
}

func parsePosition(raw json.RawMessage) (x, y float64, ok bool) {
	var p movePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return 0, 0, false
	}
	if p.Position != nil && p.Position.X != nil && p.Position.Y != nil {
		return *p.Position.X, *p.Position.Y, true
	}
	if p.X != nil && p.Y != nil {
		return *p.X, *p.Y, true
	}
	return 0, 0, false
}

// Move relays a movement payload to the rest of the room.
//
// Postcondition: The stored position changes only when payload carries one; the raw
// payload is relayed to other members either way.
func (c *Coordinator) Move(ctx context.Context, connID string, payload json.RawMessage) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		c.logger.Debug("move dropped: unknown connection", zap.String("conn", connID))
		return
	}
	if x, y, ok := parsePosition(payload); ok {
		c.registry.UpdatePosition(connID, x, y)
	}
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	c.hub.SendGroup(conn.RoomID, session.NewNotification(TargetReceivePlayerMove, conn.PlayerID, payload), connID)
}

// Chat delivers a chat line to every member of the sender's room, the sender included.
func (c *Coordinator) Chat(ctx context.Context, connID, sender, message string) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		c.logger.Debug("chat dropped: unknown connection", zap.String("conn", connID))
		return
	}
	c.hub.SendGroup(conn.RoomID, session.NewNotification(TargetReceiveChatMessage, sender, message))

	chat := event.ChatEvent{
		RoomID:    conn.RoomID,
		Sender:    sender,
		Message:   message,
		Timestamp: event.Millis(c.now()),
	}
	c.publisher.Publish(conn.RoomID, event.Chat, chat)
	c.history.Append(ctx, conn.RoomID, event.Chat.HistoryType, chat)
}

// StartGame announces the match start and places the opening power-ups.
func (c *Coordinator) StartGame(ctx context.Context, connID, mapName string) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		c.logger.Debug("start dropped: unknown connection", zap.String("conn", connID))
		return
	}
	c.hub.SendGroup(conn.RoomID, session.NewNotification(TargetGameStarted, mapName))
	c.spawner.SpawnInitial(ctx, conn.RoomID)
	c.logger.Info("game started", zap.String("room", conn.RoomID), zap.String("map", mapName))
}

// BulletFired relays a shot to the other members of the room.
func (c *Coordinator) BulletFired(ctx context.Context, connID, playerID string, x, y, direction float64) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		c.logger.Debug("bullet dropped: unknown connection", zap.String("conn", connID))
		return
	}
	c.hub.SendGroup(conn.RoomID, session.NewNotification(TargetBulletFired, playerID, x, y, direction), connID)
}

// TileDestroyed relays a destroyed tile and rolls for a power-up at its pixel position.
func (c *Coordinator) TileDestroyed(ctx context.Context, connID string, tileX, tileY int) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		c.logger.Debug("tile dropped: unknown connection", zap.String("conn", connID))
		return
	}
	c.hub.SendGroup(conn.RoomID, session.NewNotification(TargetTileDestroyed, tileX, tileY), connID)

	if dice.Chance(c.dice, c.cfg.SpawnProbability) {
		c.spawner.SpawnRandom(ctx, conn.RoomID, float64(tileX)*c.cfg.TileSize, float64(tileY)*c.cfg.TileSize)
	}
}

// ReportCollision records damage dealt by connID to victimID.
func (c *Coordinator) ReportCollision(ctx context.Context, connID, victimID string, damage int) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		c.logger.Debug("collision dropped: unknown connection", zap.String("conn", connID))
		return
	}
	col := event.CollisionEvent{
		AttackerID: connID,
		VictimID:   victimID,
		RoomID:     conn.RoomID,
		Damage:     damage,
		Timestamp:  event.Millis(c.now()),
	}
	c.publisher.Publish(conn.RoomID, event.Collision, col)
	c.history.Append(ctx, conn.RoomID, event.Collision.HistoryType, col)
}

// CollectPowerUp records that connID picked up powerUpID.
func (c *Coordinator) CollectPowerUp(ctx context.Context, connID, powerUpID string) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		c.logger.Debug("collect dropped: unknown connection", zap.String("conn", connID))
		return
	}
	collected := event.PowerUpCollectedEvent{
		PowerUpID:   powerUpID,
		CollectorID: connID,
		RoomID:      conn.RoomID,
		Timestamp:   event.Millis(c.now()),
	}
	c.publisher.Publish(conn.RoomID, event.PowerUpCollected, collected)
	c.history.Append(ctx, conn.RoomID, event.PowerUpCollected.HistoryType, collected)
}

// EndGame announces the winner to the room and records the result.
func (c *Coordinator) EndGame(ctx context.Context, connID, winnerID, winnerName string) {
	conn, ok := c.registry.Lookup(connID)
	if !ok {
		c.logger.Debug("end dropped: unknown connection", zap.String("conn", connID))
		return
	}
	c.hub.SendGroup(conn.RoomID, session.NewNotification(TargetGameOver, winnerID, winnerName))

	end := event.GameEndEvent{
		RoomID:     conn.RoomID,
		WinnerID:   winnerID,
		WinnerName: winnerName,
		Timestamp:  event.Millis(c.now()),
	}
	c.publisher.Publish(conn.RoomID, event.GameEnd, end)
	c.history.Append(ctx, conn.RoomID, event.GameEnd.HistoryType, end)
	c.logger.Info("game over", zap.String("room", conn.RoomID), zap.String("winner", winnerID))
}

// Leave removes connID from its room. The connection stays attached but cannot join
// again.
func (c *Coordinator) Leave(ctx context.Context, connID string) {
	c.left.Store(connID, struct{}{})
	c.leaveRoom(ctx, connID)
}

// Disconnected cleans up after the transport connection closes.
//
// Postcondition: connID holds no registry entry, group membership, or outbound entity.
func (c *Coordinator) Disconnected(ctx context.Context, connID string) {
	c.leaveRoom(ctx, connID)
	c.hub.Detach(connID)
	c.left.Delete(connID)
	c.logger.Info("client disconnected", zap.String("conn", connID))
}

// leaveRoom runs room cleanup at most once per registration: only the caller that
// removes the registry entry notifies the room and reconciles occupancy.
func (c *Coordinator) leaveRoom(ctx context.Context, connID string) {
	conn, ok := c.registry.Remove(connID)
	if !ok {
		return
	}
	c.hub.RemoveFromGroup(conn.RoomID, connID)
	c.hub.SendGroup(conn.RoomID, session.NewNotification(TargetPlayerLeft, connID))
	c.logger.Info("player left room",
		zap.String("conn", connID),
		zap.String("player", conn.PlayerID),
		zap.String("room", conn.RoomID),
	)

	// Persistence outlives a cancelled transport context.
	c.reconciler.OnLeave(context.WithoutCancel(ctx), conn.RoomID)
}

// Shutdown waits for in-flight history replays.
//
// Postcondition: Returns nil once all replays finish, or ctx.Err() if ctx ends first.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.replays.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
