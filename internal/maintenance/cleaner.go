// Package maintenance holds offline data-hygiene jobs that run against
// the database directly, outside the API process.
package maintenance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner runs hygiene jobs over a raw connection pool. DDL and bulk
// deletes bypass the ORM on purpose.
type Cleaner struct {
	pool *pgxpool.Pool
}

func NewCleaner(pool *pgxpool.Pool) *Cleaner {
	return &Cleaner{pool: pool}
}

// Connect opens a pgx pool for maintenance work.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}
