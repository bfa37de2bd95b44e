// Package store persists market bars, sentiment history, decision
// records, and backtest results to PostgreSQL. Grounded on the
// teacher's internal/db package: a pgxpool-backed connection pool for
// application traffic, wrapped in the circuit breaker built explicitly
// by the caller rather than a package-level singleton, plus a separate
// database/sql migration runner.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/kestrel-trading/agentrader/internal/risk"
)

// dbPool is the subset of *pgxpool.Pool this package needs, narrowed to
// an interface so tests can substitute pgxmock's pool double instead of
// a live connection.
type dbPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store wraps the pgx connection pool used for all application reads
// and writes. Every exported method routes through Breakers.Database so
// a struggling database degrades the circuit instead of piling up
// blocked goroutines.
type Store struct {
	pool     dbPool
	breakers *risk.CircuitBreakers
	log      zerolog.Logger
}

// NewWithPool builds a Store over an already-open pool, used by tests
// that substitute pgxmock's pool double for a live database.
func NewWithPool(pool dbPool, breakers *risk.CircuitBreakers, log zerolog.Logger) *Store {
	return &Store{pool: pool, breakers: breakers, log: log.With().Str("component", "store").Logger()}
}

// New opens a connection pool against dsn and verifies it with a ping.
// poolSize bounds MaxConns; MinConns is kept small since most processes
// in this system run one agent's cycles serially.
func New(ctx context.Context, dsn string, poolSize int, breakers *risk.CircuitBreakers, log zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if poolSize <= 0 {
		poolSize = 10
	}
	cfg.MaxConns = int32(poolSize)
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{
		pool:     pool,
		breakers: breakers,
		log:      log.With().Str("component", "store").Logger(),
	}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Health pings the database through the circuit breaker.
func (s *Store) Health(ctx context.Context) error {
	_, err := s.call(ctx, func(ctx context.Context) (any, error) {
		return nil, s.pool.Ping(ctx)
	})
	return err
}

// call routes operation through the database circuit breaker when one is
// configured, falling back to a direct call in tests that construct a
// Store without one.
func (s *Store) call(ctx context.Context, operation func(context.Context) (any, error)) (any, error) {
	if s.breakers == nil {
		return operation(ctx)
	}
	return s.breakers.Call(s.breakers.Database, "database", func() (interface{}, error) {
		return operation(ctx)
	})
}
