package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joeblew999/plat-survey/internal/proximity"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS completed_points (
	task_id      TEXT NOT NULL,
	point_id     TEXT NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (task_id, point_id)
)`

// Postgres keeps completions in a shared completed_points table.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Get(ctx context.Context, taskID string) (proximity.CompletionSet, error) {
	rows, err := p.pool.Query(ctx, `SELECT point_id FROM completed_points WHERE task_id = $1`, taskID)
	if err != nil {
		return proximity.CompletionSet{}, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return proximity.CompletionSet{}, err
	}
	return proximity.NewCompletionSet(ids...), nil
}

func (p *Postgres) Put(ctx context.Context, taskID string, set proximity.CompletionSet) error {
	batch := &pgx.Batch{}
	for _, id := range set.IDs() {
		batch.Queue(`
			INSERT INTO completed_points (task_id, point_id) VALUES ($1, $2)
			ON CONFLICT (task_id, point_id) DO NOTHING
		`, taskID, id)
	}
	return p.pool.SendBatch(ctx, batch).Close()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
