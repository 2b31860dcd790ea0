package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/battletanks/internal/config"
	"github.com/cory-johannsen/battletanks/internal/storage/postgres"
	"github.com/cory-johannsen/battletanks/internal/testutil"
)

func TestPool_Health(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	assert.NoError(t, pc.Pool.Health(context.Background(), 2*time.Second))
	assert.NoError(t, pc.Pool.Probe(2*time.Second)(context.Background()))
	assert.Equal(t, int32(0), pc.Pool.InUse())
}

func TestPool_Sessions(t *testing.T) {
	pc := testutil.NewPostgresContainer(t)
	ctx := context.Background()

	repo := pc.Pool.Sessions()
	created, err := repo.Create(ctx, postgres.GameSession{RoomName: "pool", CurrentPlayers: 1})
	require.NoError(t, err)

	found, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "pool", found.RoomName)
}

func TestNewPool_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := postgres.NewPool(ctx, config.DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     1,
		User:     "u",
		Password: "p",
		Name:     "db",
		SSLMode:  "disable",
		MaxConns: 1,
	})
	require.Error(t, err)
}
