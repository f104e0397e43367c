package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/jw6ventures/foodlog/internal/supabase"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

// Store aggregates the repositories of one backend.
type Store struct {
	health pinger

	Foods FoodRepository
}

// New wires the direct PostgreSQL repositories on a shared connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{
		health: db,
		Foods:  NewPostgresFoods(db),
	}
}

// NewPostgREST wires repositories backed by the Supabase table API.
func NewPostgREST(client *supabase.Client) *Store {
	return &Store{
		health: client,
		Foods:  NewPostgRESTFoods(client),
	}
}

// HealthCheck verifies that the underlying backend is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.health.PingContext(ctx)
}
