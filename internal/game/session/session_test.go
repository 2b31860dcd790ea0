package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestBridgeEntity_Push(t *testing.T) {
	e := NewBridgeEntity("c1", 4)
	assert.Equal(t, "c1", e.ConnID())
	require.NoError(t, e.Push(NewNotification("ConnectionEstablished", "c1")))

	n := <-e.Events()
	assert.Equal(t, "ConnectionEstablished", n.Target)
	assert.Equal(t, []any{"c1"}, n.Args)
}

func TestBridgeEntity_PushClosed(t *testing.T) {
	e := NewBridgeEntity("c1", 4)
	require.NoError(t, e.Close())
	assert.True(t, e.IsClosed())
	assert.Error(t, e.Push(NewNotification("fail")))
}

func TestBridgeEntity_PushFull(t *testing.T) {
	e := NewBridgeEntity("c1", 1)
	require.NoError(t, e.Push(NewNotification("first")))
	err := e.Push(NewNotification("overflow"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "buffer full")
}

func TestBridgeEntity_CloseIdempotent(t *testing.T) {
	e := NewBridgeEntity("c1", 4)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.True(t, e.IsClosed())
}

func TestNewNotification_NoArgsIsEmptySlice(t *testing.T) {
	n := NewNotification("Ping")
	assert.NotNil(t, n.Args)
	assert.Empty(t, n.Args)
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	c := r.Register("c1", "p1", "Alice", "5", 1, 2)
	assert.Equal(t, "5", c.RoomID)

	got, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, Connection{ConnID: "c1", PlayerID: "p1", PlayerName: "Alice", RoomID: "5", X: 1, Y: 2}, got)

	_, ok = r.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "p1", "Alice", "5", 0, 0)
	r.Register("c1", "p1", "Alice", "6", 3, 4)

	got, ok := r.Lookup("c1")
	require.True(t, ok)
	assert.Equal(t, "6", got.RoomID)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 0, r.Occupancy("5"))
	assert.Equal(t, 1, r.Occupancy("6"))
}

func TestRegistry_UpdatePosition(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "p1", "Alice", "5", 0, 0)

	assert.True(t, r.UpdatePosition("c1", 7, 9))
	got, _ := r.Lookup("c1")
	assert.Equal(t, 7.0, got.X)
	assert.Equal(t, 9.0, got.Y)
}

func TestRegistry_UpdatePositionUnknownIsNoop(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.UpdatePosition("ghost", 1, 1))
	_, ok := r.Lookup("ghost")
	assert.False(t, ok, "UpdatePosition must not create entries")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "p1", "Alice", "5", 0, 0)

	prior, ok := r.Remove("c1")
	require.True(t, ok)
	assert.Equal(t, "Alice", prior.PlayerName)

	_, ok = r.Remove("c1")
	assert.False(t, ok, "second Remove must report absent")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_InRoom(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "p1", "Alice", "room_a", 0, 0)
	r.Register("c2", "p2", "Bob", "room_a", 0, 0)
	r.Register("c3", "p3", "Charlie", "room_b", 0, 0)

	roomA := r.InRoom("room_a")
	assert.Len(t, roomA, 2)
	assert.Len(t, r.InRoom("room_b"), 1)
	assert.Empty(t, r.InRoom("empty_room"))
}

func TestRegistry_ConcurrentRemoveExactlyOnce(t *testing.T) {
	r := NewRegistry()
	r.Register("c1", "p1", "Alice", "5", 0, 0)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if _, ok := r.Remove("c1"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestRegistry_ConcurrentRegisterRemove(t *testing.T) {
	r := NewRegistry()
	const n = 100
	var wg sync.WaitGroup

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			r.Register(id, id, id, "room_a", 0, 0)
			r.UpdatePosition(id, float64(i), float64(i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, r.Count())
	assert.Equal(t, n, r.Occupancy("room_a"))

	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, _ = r.Remove(fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count())
	assert.Empty(t, r.InRoom("room_a"))
}

// Property: after any sequence of joins and leaves, each room's occupancy equals the
// number of connections the model believes are joined there, and is never negative.
func TestPropertyRoomOccupancyMatchesJoined(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := NewRegistry()
		rooms := []string{"r1", "r2", "r3"}
		model := map[string]string{} // connID -> roomID

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			connID := fmt.Sprintf("c%d", rapid.IntRange(0, 9).Draw(t, "conn"))
			if rapid.Bool().Draw(t, "join") {
				room := rapid.SampledFrom(rooms).Draw(t, "room")
				r.Register(connID, connID, connID, room, 0, 0)
				model[connID] = room
			} else {
				_, ok := r.Remove(connID)
				_, want := model[connID]
				if ok != want {
					t.Fatalf("Remove(%s) = %v, model says %v", connID, ok, want)
				}
				delete(model, connID)
			}

			for _, room := range rooms {
				want := 0
				for _, rm := range model {
					if rm == room {
						want++
					}
				}
				got := r.Occupancy(room)
				if got < 0 || got != want {
					t.Fatalf("room %s occupancy %d, want %d", room, got, want)
				}
			}
		}
		if r.Count() != len(model) {
			t.Fatalf("count %d, want %d", r.Count(), len(model))
		}
	})
}
