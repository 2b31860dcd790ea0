package session

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// Connection is the live state of one joined client.
type Connection struct {
	// ConnID is the transport-assigned connection identifier.
	ConnID string
	// PlayerID is the caller-supplied player identity.
	PlayerID string
	// PlayerName is the display name shown to other players.
	PlayerName string
	// RoomID is the room the connection currently occupies.
	RoomID string
	// X and Y are the last known position.
	X float64
	Y float64
}

// Registry tracks live connections keyed by connection id.
// All methods are safe for concurrent use; entries are stored by value so
// callers always receive a private copy.
type Registry struct {
	conns *xsync.MapOf[string, Connection]
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: xsync.NewMapOf[string, Connection](),
	}
}

// Register inserts or overwrites the entry for connID.
//
// Precondition: connID and roomID must be non-empty.
// Postcondition: Lookup(connID) returns the stored Connection.
func (r *Registry) Register(connID, playerID, playerName, roomID string, x, y float64) Connection {
	c := Connection{
		ConnID:     connID,
		PlayerID:   playerID,
		PlayerName: playerName,
		RoomID:     roomID,
		X:          x,
		Y:          y,
	}
	r.conns.Store(connID, c)
	return c
}

// UpdatePosition sets the position of an existing connection.
//
// Postcondition: Returns true if connID was present and updated; an absent
// connID is left absent.
func (r *Registry) UpdatePosition(connID string, x, y float64) bool {
	updated := false
	r.conns.Compute(connID, func(old Connection, loaded bool) (Connection, bool) {
		if !loaded {
			// Delete the zero value Compute would otherwise insert.
			return old, true
		}
		old.X, old.Y = x, y
		updated = true
		return old, false
	})
	return updated
}

// Remove deletes connID and returns its prior state.
//
// Postcondition: Returns (state, true) for exactly one caller per registration,
// (zero, false) otherwise.
func (r *Registry) Remove(connID string) (Connection, bool) {
	return r.conns.LoadAndDelete(connID)
}

// Lookup returns the state for connID.
//
// Postcondition: Returns (state, true) if found, or (zero, false) otherwise.
func (r *Registry) Lookup(connID string) (Connection, bool) {
	return r.conns.Load(connID)
}

// InRoom returns every connection currently registered under roomID.
//
// Postcondition: Returns a slice of connections (may be empty) in no particular order.
func (r *Registry) InRoom(roomID string) []Connection {
	var out []Connection
	r.conns.Range(func(_ string, c Connection) bool {
		if c.RoomID == roomID {
			out = append(out, c)
		}
		return true
	})
	return out
}

// Occupancy returns the number of connections registered under roomID.
func (r *Registry) Occupancy(roomID string) int {
	n := 0
	r.conns.Range(func(_ string, c Connection) bool {
		if c.RoomID == roomID {
			n++
		}
		return true
	})
	return n
}

// Count returns the total number of registered connections.
func (r *Registry) Count() int {
	return r.conns.Size()
}
