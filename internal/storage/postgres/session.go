package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionStatus is the lifecycle state of a persisted game session.
type SessionStatus string

const (
	StatusWaiting    SessionStatus = "Waiting"
	StatusInProgress SessionStatus = "InProgress"
	StatusFinished   SessionStatus = "Finished"
)

// DefaultMaxPlayers is the seat count assigned when a session does not specify one.
const DefaultMaxPlayers = 4

// ErrSessionNotFound is returned when no session matches the requested id.
var ErrSessionNotFound = errors.New("game session not found")

// GameSession is a persisted game room record.
type GameSession struct {
	ID             int64
	RoomName       string
	MapName        string
	MaxPlayers     int
	CurrentPlayers int
	Status         SessionStatus
	CreatedAt      time.Time
}

// SessionRepository provides game session persistence.
type SessionRepository struct {
	db *pgxpool.Pool
}

// NewSessionRepository creates a SessionRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSessionRepository(db *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, room_name, map_name, max_players, current_players, status, created_at`

func scanSession(row pgx.Row) (GameSession, error) {
	var s GameSession
	var status string
	err := row.Scan(&s.ID, &s.RoomName, &s.MapName, &s.MaxPlayers, &s.CurrentPlayers, &status, &s.CreatedAt)
	s.Status = SessionStatus(status)
	return s, err
}

// Create inserts a new session.
//
// Precondition: s.RoomName must be non-empty.
// Postcondition: Returns the stored session with ID and CreatedAt set. MaxPlayers,
// MapName, and Status take their defaults when zero.
func (r *SessionRepository) Create(ctx context.Context, s GameSession) (GameSession, error) {
	if s.MaxPlayers == 0 {
		s.MaxPlayers = DefaultMaxPlayers
	}
	if s.MapName == "" {
		s.MapName = "default"
	}
	if s.Status == "" {
		s.Status = StatusWaiting
	}

	created, err := scanSession(r.db.QueryRow(ctx,
		`INSERT INTO game_sessions (room_name, map_name, max_players, current_players, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+sessionColumns,
		s.RoomName, s.MapName, s.MaxPlayers, s.CurrentPlayers, string(s.Status),
	))
	if err != nil {
		return GameSession{}, fmt.Errorf("inserting game session: %w", err)
	}
	return created, nil
}

// FindByID retrieves a session.
//
// Postcondition: Returns the session or ErrSessionNotFound.
func (r *SessionRepository) FindByID(ctx context.Context, id int64) (GameSession, error) {
	s, err := scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GameSession{}, ErrSessionNotFound
		}
		return GameSession{}, fmt.Errorf("querying game session %d: %w", id, err)
	}
	return s, nil
}

// Save writes the mutable fields of s back to its row.
//
// Precondition: s.CurrentPlayers >= 0.
// Postcondition: The row is updated, or ErrSessionNotFound is returned.
func (r *SessionRepository) Save(ctx context.Context, s GameSession) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE game_sessions
		 SET map_name = $1, max_players = $2, current_players = $3, status = $4
		 WHERE id = $5`,
		s.MapName, s.MaxPlayers, s.CurrentPlayers, string(s.Status), s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating game session %d: %w", s.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes a session.
//
// Postcondition: The row is gone, or ErrSessionNotFound is returned.
func (r *SessionRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM game_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting game session %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
