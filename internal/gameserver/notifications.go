package gameserver

// Outbound notification targets.
const (
	TargetConnectionEstablished = "ConnectionEstablished"
	TargetExistingPlayers       = "ExistingPlayers"
	TargetPlayerJoined          = "PlayerJoined"
	TargetRoomHistory           = "RoomHistory"
	TargetReceivePlayerMove     = "ReceivePlayerMove"
	TargetGameStarted           = "GameStarted"
	TargetReceiveChatMessage    = "ReceiveChatMessage"
	TargetBulletFired           = "BulletFired"
	TargetTileDestroyed         = "TileDestroyed"
	TargetGameOver              = "GameOver"
	TargetPlayerLeft            = "PlayerLeft"
)

// PlayerSnapshot describes another player already in a room when a connection joins.
type PlayerSnapshot struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}
