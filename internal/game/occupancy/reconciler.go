// Package occupancy keeps the persisted player count of a game session in step with
// players leaving its live room.
package occupancy

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/battletanks/internal/storage/postgres"
)

// SessionStore is the persistence contract the reconciler needs.
type SessionStore interface {
	FindByID(ctx context.Context, id int64) (postgres.GameSession, error)
	Save(ctx context.Context, s postgres.GameSession) error
	Delete(ctx context.Context, id int64) error
}

// Reconciler decrements persisted occupancy when a player leaves a room.
type Reconciler struct {
	store   SessionStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewReconciler creates a Reconciler.
//
// Precondition: store and logger must be non-nil; timeout > 0.
func NewReconciler(store SessionStore, timeout time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{store: store, timeout: timeout, logger: logger}
}

// OnLeave applies one departure to the session whose id is roomID.
//
// Postcondition: The stored count is decremented, floored at zero; a session reaching
// zero is deleted. Rooms without a numeric id or a stored session are ignored. Store
// failures are logged and swallowed.
func (r *Reconciler) OnLeave(ctx context.Context, roomID string) {
	id, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		r.logger.Debug("room has no persisted session", zap.String("room", roomID))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	s, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrSessionNotFound) {
			r.logger.Debug("no persisted session for room", zap.String("room", roomID))
			return
		}
		r.logger.Warn("loading session for occupancy update", zap.String("room", roomID), zap.Error(err))
		return
	}

	s.CurrentPlayers = max(s.CurrentPlayers-1, 0)

	if s.CurrentPlayers == 0 {
		if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, postgres.ErrSessionNotFound) {
			r.logger.Warn("deleting empty session", zap.String("room", roomID), zap.Error(err))
			return
		}
		r.logger.Info("empty session removed", zap.String("room", roomID))
		return
	}

	if err := r.store.Save(ctx, s); err != nil {
		r.logger.Warn("saving session occupancy", zap.String("room", roomID), zap.Error(err))
		return
	}
	r.logger.Debug("session occupancy updated",
		zap.String("room", roomID),
		zap.Int("current_players", s.CurrentPlayers),
	)
}
