package gameserver

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/battletanks/internal/game/session"
)

func drain(e *session.BridgeEntity) []session.Notification {
	var out []session.Notification
	for {
		select {
		case n, ok := <-e.Events():
			if !ok {
				return out
			}
			out = append(out, n)
		default:
			return out
		}
	}
}

func TestHub_SendTo(t *testing.T) {
	h := NewHub(8, zaptest.NewLogger(t))
	e := h.Attach("c1")

	h.SendTo("c1", session.NewNotification("Ping", 1))
	h.SendTo("unknown", session.NewNotification("Ping", 2))

	got := drain(e)
	require.Len(t, got, 1)
	assert.Equal(t, "Ping", got[0].Target)
	assert.Equal(t, []any{1}, got[0].Args)
}

func TestHub_SendGroupExcludes(t *testing.T) {
	h := NewHub(8, zaptest.NewLogger(t))
	a, b, c := h.Attach("a"), h.Attach("b"), h.Attach("c")
	h.AddToGroup("r1", "a")
	h.AddToGroup("r1", "b")
	h.AddToGroup("r2", "c")

	h.SendGroup("r1", session.NewNotification("Hello"), "a")

	assert.Empty(t, drain(a))
	assert.Len(t, drain(b), 1)
	assert.Empty(t, drain(c))
}

func TestHub_GroupMembership(t *testing.T) {
	h := NewHub(8, zaptest.NewLogger(t))
	h.AddToGroup("r", "a")
	h.AddToGroup("r", "a")
	h.AddToGroup("r", "b")
	assert.ElementsMatch(t, []string{"a", "b"}, h.Members("r"))

	h.RemoveFromGroup("r", "a")
	assert.Equal(t, []string{"b"}, h.Members("r"))

	h.RemoveFromGroup("r", "b")
	assert.Empty(t, h.Members("r"))
	assert.Zero(t, h.Groups(), "empty group is removed")

	h.RemoveFromGroup("missing", "x")
	assert.Zero(t, h.Groups())
}

func TestHub_MembersSnapshotIsStable(t *testing.T) {
	h := NewHub(8, zaptest.NewLogger(t))
	h.AddToGroup("r", "a")
	h.AddToGroup("r", "b")
	snapshot := h.Members("r")

	h.RemoveFromGroup("r", "a")
	h.AddToGroup("r", "c")

	assert.Equal(t, []string{"a", "b"}, snapshot)
}

func TestHub_DetachClosesEntity(t *testing.T) {
	h := NewHub(8, zaptest.NewLogger(t))
	e := h.Attach("c1")
	h.Detach("c1")
	h.Detach("c1")

	assert.True(t, e.IsClosed())
	h.SendTo("c1", session.NewNotification("Ping"))
}

func TestHub_ReattachClosesPrevious(t *testing.T) {
	h := NewHub(8, zaptest.NewLogger(t))
	first := h.Attach("c1")
	second := h.Attach("c1")

	assert.True(t, first.IsClosed())
	assert.False(t, second.IsClosed())
}

func TestHub_FullBufferDrops(t *testing.T) {
	h := NewHub(1, zaptest.NewLogger(t))
	e := h.Attach("c1")
	h.SendTo("c1", session.NewNotification("One"))
	h.SendTo("c1", session.NewNotification("Two"))

	got := drain(e)
	require.Len(t, got, 1)
	assert.Equal(t, "One", got[0].Target)
}

func TestHub_ConcurrentGroupChanges(t *testing.T) {
	h := NewHub(8, zaptest.NewLogger(t))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.AddToGroup("r", fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()
	assert.Len(t, h.Members("r"), 50)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.RemoveFromGroup("r", fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()
	assert.Zero(t, h.Groups())
}

// Property: group membership always matches a model set after any add/remove sequence.
func TestPropertyHubGroupMatchesModel(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := NewHub(8, zaptest.NewLogger(t))
		model := make(map[string]bool)
		ops := rapid.IntRange(1, 60).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			id := rapid.SampledFrom([]string{"a", "b", "c", "d"}).Draw(rt, "id")
			if rapid.Bool().Draw(rt, "add") {
				h.AddToGroup("r", id)
				model[id] = true
			} else {
				h.RemoveFromGroup("r", id)
				delete(model, id)
			}
		}
		members := h.Members("r")
		if len(members) != len(model) {
			rt.Fatalf("members %v, model %v", members, model)
		}
		for _, m := range members {
			if !model[m] {
				rt.Fatalf("unexpected member %q", m)
			}
		}
	})
}
