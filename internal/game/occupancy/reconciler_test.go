package occupancy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/battletanks/internal/storage/postgres"
)

// memStore is an in-memory SessionStore.
type memStore struct {
	mu       sync.Mutex
	sessions map[int64]postgres.GameSession
	findErr  error
	saveErr  error
	deleted  []int64
	saves    int
}

func newMemStore(sessions ...postgres.GameSession) *memStore {
	m := &memStore{sessions: make(map[int64]postgres.GameSession)}
	for _, s := range sessions {
		m.sessions[s.ID] = s
	}
	return m
}

func (m *memStore) FindByID(_ context.Context, id int64) (postgres.GameSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return postgres.GameSession{}, m.findErr
	}
	s, ok := m.sessions[id]
	if !ok {
		return postgres.GameSession{}, postgres.ErrSessionNotFound
	}
	return s, nil
}

func (m *memStore) Save(_ context.Context, s postgres.GameSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.sessions[s.ID]; !ok {
		return postgres.ErrSessionNotFound
	}
	m.sessions[s.ID] = s
	m.saves++
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return postgres.ErrSessionNotFound
	}
	delete(m.sessions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *memStore) get(id int64) (postgres.GameSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func TestOnLeave_Decrements(t *testing.T) {
	store := newMemStore(postgres.GameSession{ID: 5, CurrentPlayers: 2})
	r := NewReconciler(store, time.Second, zaptest.NewLogger(t))

	r.OnLeave(context.Background(), "5")

	s, ok := store.get(5)
	require.True(t, ok)
	assert.Equal(t, 1, s.CurrentPlayers)
}

func TestOnLeave_DeletesAtZero(t *testing.T) {
	store := newMemStore(postgres.GameSession{ID: 5, CurrentPlayers: 1})
	r := NewReconciler(store, time.Second, zaptest.NewLogger(t))

	r.OnLeave(context.Background(), "5")

	_, ok := store.get(5)
	assert.False(t, ok)
	assert.Equal(t, []int64{5}, store.deleted)
}

func TestOnLeave_AlreadyZeroIsDeleted(t *testing.T) {
	store := newMemStore(postgres.GameSession{ID: 7, CurrentPlayers: 0})
	r := NewReconciler(store, time.Second, zaptest.NewLogger(t))

	r.OnLeave(context.Background(), "7")

	_, ok := store.get(7)
	assert.False(t, ok)
}

func TestOnLeave_NonNumericRoomIsIgnored(t *testing.T) {
	store := newMemStore(postgres.GameSession{ID: 5, CurrentPlayers: 2})
	r := NewReconciler(store, time.Second, zaptest.NewLogger(t))

	r.OnLeave(context.Background(), "lobby")

	s, _ := store.get(5)
	assert.Equal(t, 2, s.CurrentPlayers)
	assert.Zero(t, store.saves)
}

func TestOnLeave_MissingSessionIsIgnored(t *testing.T) {
	store := newMemStore()
	r := NewReconciler(store, time.Second, zaptest.NewLogger(t))

	r.OnLeave(context.Background(), "42")

	assert.Empty(t, store.deleted)
	assert.Zero(t, store.saves)
}

func TestOnLeave_StoreFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := newMemStore(postgres.GameSession{ID: 5, CurrentPlayers: 3})
	store.saveErr = errors.New("connection reset")
	r := NewReconciler(store, time.Second, zap.New(core))

	r.OnLeave(context.Background(), "5")

	assert.Equal(t, 1, logs.FilterMessage("saving session occupancy").Len())

	store.findErr = errors.New("timeout")
	r.OnLeave(context.Background(), "5")
	assert.Equal(t, 1, logs.FilterMessage("loading session for occupancy update").Len())
}

// Property: repeated departures never drive the stored count below zero, and the
// session is removed exactly when the count reaches zero.
func TestPropertyOccupancyNeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		start := rapid.IntRange(0, 10).Draw(rt, "start")
		leaves := rapid.IntRange(0, 15).Draw(rt, "leaves")

		store := newMemStore(postgres.GameSession{ID: 1, CurrentPlayers: start})
		r := NewReconciler(store, time.Second, zap.NewNop())
		for i := 0; i < leaves; i++ {
			r.OnLeave(context.Background(), "1")
		}

		s, ok := store.get(1)
		if leaves == 0 {
			if !ok || s.CurrentPlayers != start {
				rt.Fatalf("session changed without any departure")
			}
			return
		}
		if ok {
			if s.CurrentPlayers <= 0 {
				rt.Fatalf("stored count %d should have been deleted", s.CurrentPlayers)
			}
			if s.CurrentPlayers != start-leaves {
				rt.Fatalf("count = %d, want %d", s.CurrentPlayers, start-leaves)
			}
			return
		}
		if start-leaves > 0 {
			rt.Fatalf("session removed while %d players remain", start-leaves)
		}
	})
}
