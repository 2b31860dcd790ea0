// Package postgres persists game sessions in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/battletanks/internal/config"
)

// healthCheckPeriod is how often pgxpool probes idle connections.
const healthCheckPeriod = 30 * time.Second

// Pool owns the connection pool shared by the session repository and the
// health probes.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to the session database and verifies it answers a ping.
//
// Precondition: cfg must contain valid database connection parameters.
// Postcondition: Returns a connected Pool or a non-nil error; on error no
// connections are left open.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.HealthCheckPeriod = healthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &Pool{pool: pool}, nil
}

// Health pings the database, giving up after timeout.
//
// Precondition: The pool must not be closed.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health: %w", err)
	}
	return nil
}

// Probe returns Health bound to timeout, in the shape the /healthz handler expects.
func (p *Pool) Probe(timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		return p.Health(ctx, timeout)
	}
}

// Sessions returns a SessionRepository sharing this pool.
func (p *Pool) Sessions() *SessionRepository {
	return NewSessionRepository(p.pool)
}

// InUse reports how many connections are currently acquired.
func (p *Pool) InUse() int32 {
	return p.pool.Stat().AcquiredConns()
}

// Close releases all pool resources.
//
// Postcondition: The pool is no longer usable after calling Close.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
