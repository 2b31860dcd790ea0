package gameserver

import (
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/game/session"
)

// Hub owns each connection's outbound BridgeEntity and the per-room broadcast groups.
//
// Group membership slices are replaced, never mutated, so a broadcast iterates a stable
// snapshot without holding any lock.
type Hub struct {
	entities   *xsync.MapOf[string, *session.BridgeEntity]
	groups     *xsync.MapOf[string, []string]
	outboxSize int
	logger     *zap.Logger
}

// NewHub creates an empty Hub.
//
// Precondition: logger must be non-nil.
func NewHub(outboxSize int, logger *zap.Logger) *Hub {
	return &Hub{
		entities:   xsync.NewMapOf[string, *session.BridgeEntity](),
		groups:     xsync.NewMapOf[string, []string](),
		outboxSize: outboxSize,
		logger:     logger,
	}
}

// Attach creates the outbound entity for connID, replacing and closing any previous one.
//
// Postcondition: Returns an open entity whose Events channel the transport drains.
func (h *Hub) Attach(connID string) *session.BridgeEntity {
	entity := session.NewBridgeEntity(connID, h.outboxSize)
	if old, loaded := h.entities.LoadAndStore(connID, entity); loaded {
		_ = old.Close()
	}
	return entity
}

// Detach closes and forgets the entity for connID. Safe to call more than once.
func (h *Hub) Detach(connID string) {
	if entity, ok := h.entities.LoadAndDelete(connID); ok {
		_ = entity.Close()
	}
}

// AddToGroup adds connID to roomID's broadcast group.
func (h *Hub) AddToGroup(roomID, connID string) {
	h.groups.Compute(roomID, func(members []string, _ bool) ([]string, bool) {
		if slices.Contains(members, connID) {
			return members, false
		}
		next := make([]string, len(members), len(members)+1)
		copy(next, members)
		return append(next, connID), false
	})
}

// RemoveFromGroup removes connID from roomID's broadcast group.
//
// Postcondition: An emptied group no longer exists.
func (h *Hub) RemoveFromGroup(roomID, connID string) {
	h.groups.Compute(roomID, func(members []string, loaded bool) ([]string, bool) {
		if !loaded {
			return members, true
		}
		idx := slices.Index(members, connID)
		if idx < 0 {
			return members, len(members) == 0
		}
		next := slices.Delete(slices.Clone(members), idx, idx+1)
		return next, len(next) == 0
	})
}

// Members returns a snapshot of roomID's broadcast group.
func (h *Hub) Members(roomID string) []string {
	members, _ := h.groups.Load(roomID)
	return members
}

// Groups returns the number of non-empty broadcast groups.
func (h *Hub) Groups() int {
	return h.groups.Size()
}

// SendTo pushes n to a single connection.
//
// Postcondition: n is enqueued, or the failure is logged and n is dropped.
func (h *Hub) SendTo(connID string, n session.Notification) {
	entity, ok := h.entities.Load(connID)
	if !ok {
		h.logger.Debug("no entity for connection", zap.String("conn", connID), zap.String("target", n.Target))
		return
	}
	if err := entity.Push(n); err != nil {
		h.logger.Warn("push to entity failed",
			zap.String("conn", connID),
			zap.String("target", n.Target),
			zap.Error(err),
		)
	}
}

// SendGroup pushes n to every member of roomID except those listed in exclude.
func (h *Hub) SendGroup(roomID string, n session.Notification, exclude ...string) {
	for _, connID := range h.Members(roomID) {
		if slices.Contains(exclude, connID) {
			continue
		}
		h.SendTo(connID, n)
	}
}
