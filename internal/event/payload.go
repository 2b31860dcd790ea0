package event

// PowerUp types, in spawn rotation order.
const (
	PowerUpAmmo   = "ammo"
	PowerUpHealth = "health"
	PowerUpSpeed  = "speed"
)

// PowerUpRotation is the fixed power-up type rotation.
var PowerUpRotation = []string{PowerUpAmmo, PowerUpHealth, PowerUpSpeed}

// PowerUp announces a power-up placed in a room.
type PowerUp struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	RoomID    string  `json:"roomId"`
	Timestamp int64   `json:"timestamp"`
}

// PowerUpCollectedEvent records which connection picked up a power-up.
type PowerUpCollectedEvent struct {
	PowerUpID   string `json:"powerUpId"`
	CollectorID string `json:"collectorId"`
	RoomID      string `json:"roomId"`
	Timestamp   int64  `json:"timestamp"`
}

// CollisionEvent records damage dealt by one connection to a victim.
type CollisionEvent struct {
	AttackerID string `json:"attackerId"`
	VictimID   string `json:"victimId"`
	RoomID     string `json:"roomId"`
	Damage     int    `json:"damage"`
	Timestamp  int64  `json:"timestamp"`
}

// GameEndEvent records a match winner.
type GameEndEvent struct {
	RoomID     string `json:"roomId"`
	WinnerID   string `json:"winnerId"`
	WinnerName string `json:"winnerName"`
	Timestamp  int64  `json:"timestamp"`
}

// ChatEvent records a chat line sent in a room.
type ChatEvent struct {
	RoomID    string `json:"roomId"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}
