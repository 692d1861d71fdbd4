package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/Conductor/internal/port/database"
	"github.com/Strob0t/Conductor/internal/port/metricsource"
	"github.com/Strob0t/Conductor/internal/port/topicsource"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ database.Store      = (*Store)(nil)
	_ topicsource.Source  = (*Store)(nil)
	_ metricsource.Source = (*Store)(nil)
)

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
