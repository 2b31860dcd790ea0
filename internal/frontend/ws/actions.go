package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound action names.
const (
	ActionJoin            = "join"
	ActionMove            = "move"
	ActionChat            = "chat"
	ActionStartGame       = "startGame"
	ActionBulletFired     = "bulletFired"
	ActionTileDestroyed   = "tileDestroyed"
	ActionReportCollision = "reportCollision"
	ActionCollectPowerUp  = "collectPowerUp"
	ActionEndGame         = "endGame"
	ActionLeaveRoom       = "leaveRoom"
	ActionDisconnect      = "disconnect"
)

// errDisconnect asks the read loop to close the connection.
var errDisconnect = errors.New("client requested disconnect")

// Frame is one inbound client message.
type Frame struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args"`
}

type joinArgs struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	RoomID     string  `json:"roomId"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

type moveArgs struct {
	PlayerID string          `json:"playerId"`
	Movement json.RawMessage `json:"movement"`
}

type chatArgs struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type startGameArgs struct {
	MapName string `json:"mapName"`
}

type bulletArgs struct {
	PlayerID  string  `json:"playerId"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Direction float64 `json:"direction"`
}

type tileArgs struct {
	TileX int `json:"tileX"`
	TileY int `json:"tileY"`
}

type collisionArgs struct {
	VictimID string `json:"victimId"`
	Damage   int    `json:"damage"`
}

type collectArgs struct {
	PowerUpID string `json:"powerUpId"`
}

type endGameArgs struct {
	WinnerID   string `json:"winnerId"`
	WinnerName string `json:"winnerName"`
}

// actionContext carries the inputs an action handler needs.
type actionContext struct {
	ctx    context.Context
	connID string
	args   json.RawMessage
	coord  Coordinator
}

// decode unmarshals the frame arguments into v. Absent arguments decode as an empty object.
func (a *actionContext) decode(v any) error {
	if len(a.args) == 0 {
		return nil
	}
	if err := json.Unmarshal(a.args, v); err != nil {
		return fmt.Errorf("decoding args: %w", err)
	}
	return nil
}

type actionHandlerFunc func(a *actionContext) error

// actionHandlerMap is the single source of truth for inbound action dispatch.
var actionHandlerMap = map[string]actionHandlerFunc{
	ActionJoin:            handleJoin,
	ActionMove:            handleMove,
	ActionChat:            handleChat,
	ActionStartGame:       handleStartGame,
	ActionBulletFired:     handleBulletFired,
	ActionTileDestroyed:   handleTileDestroyed,
	ActionReportCollision: handleReportCollision,
	ActionCollectPowerUp:  handleCollectPowerUp,
	ActionEndGame:         handleEndGame,
	ActionLeaveRoom:       handleLeaveRoom,
	ActionDisconnect:      handleDisconnect,
}

// ActionHandlers returns the names of every dispatchable action.
func ActionHandlers() []string {
	names := make([]string, 0, len(actionHandlerMap))
	for name := range actionHandlerMap {
		names = append(names, name)
	}
	return names
}

func handleJoin(a *actionContext) error {
	var args joinArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.Join(a.ctx, a.connID, args.PlayerID, args.PlayerName, args.RoomID, args.X, args.Y)
	return nil
}

func handleMove(a *actionContext) error {
	var args moveArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.Move(a.ctx, a.connID, args.Movement)
	return nil
}

func handleChat(a *actionContext) error {
	var args chatArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.Chat(a.ctx, a.connID, args.Sender, args.Message)
	return nil
}

func handleStartGame(a *actionContext) error {
	var args startGameArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.StartGame(a.ctx, a.connID, args.MapName)
	return nil
}

func handleBulletFired(a *actionContext) error {
	var args bulletArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.BulletFired(a.ctx, a.connID, args.PlayerID, args.X, args.Y, args.Direction)
	return nil
}

func handleTileDestroyed(a *actionContext) error {
	var args tileArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.TileDestroyed(a.ctx, a.connID, args.TileX, args.TileY)
	return nil
}

func handleReportCollision(a *actionContext) error {
	var args collisionArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.ReportCollision(a.ctx, a.connID, args.VictimID, args.Damage)
	return nil
}

func handleCollectPowerUp(a *actionContext) error {
	var args collectArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.CollectPowerUp(a.ctx, a.connID, args.PowerUpID)
	return nil
}

func handleEndGame(a *actionContext) error {
	var args endGameArgs
	if err := a.decode(&args); err != nil {
		return err
	}
	a.coord.EndGame(a.ctx, a.connID, args.WinnerID, args.WinnerName)
	return nil
}

func handleLeaveRoom(a *actionContext) error {
	a.coord.Leave(a.ctx, a.connID)
	return nil
}

func handleDisconnect(*actionContext) error {
	return errDisconnect
}
