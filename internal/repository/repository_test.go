package repository_test

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/CreativeSeo33/new3-sub001/internal/repository"
)

func startPostgres(ctx context.Context) (*postgres.PostgresContainer, *pgxpool.Pool, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:17.6-alpine3.22",
		postgres.BasicWaitStrategies(),
		postgres.WithInitScripts(
			"../../migrations/000001_init.up.sql"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres.Run: %w", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, nil, fmt.Errorf("pc.ConnectionString: %w", err)
	}

	// Connect registers the decimal codec the repositories rely on.
	pool, err := repository.Connect(ctx, connStr)
	if err != nil {
		return nil, nil, fmt.Errorf("repository.Connect: %w", err)
	}

	return postgresContainer, pool, nil
}
