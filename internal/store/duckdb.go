package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joeblew999/plat-survey/internal/db"
	"github.com/joeblew999/plat-survey/internal/proximity"
)

// DuckDB keeps completions in the embedded completed_points table.
type DuckDB struct {
	db *sql.DB
}

// OpenDuckDB opens dataDir/duckdb/survey.duckdb.
func OpenDuckDB(ctx context.Context, dataDir string) (*DuckDB, error) {
	conn, err := db.Open(ctx, db.Config{DataDir: dataDir, DBName: "survey"})
	if err != nil {
		return nil, err
	}
	return &DuckDB{db: conn}, nil
}

// NewDuckDB wraps a connection that already has db.Schema applied.
func NewDuckDB(conn *sql.DB) *DuckDB { return &DuckDB{db: conn} }

func (d *DuckDB) Get(ctx context.Context, taskID string) (proximity.CompletionSet, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT point_id FROM completed_points WHERE task_id = ? ORDER BY point_id`, taskID)
	if err != nil {
		return proximity.CompletionSet{}, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return proximity.CompletionSet{}, err
		}
		ids = append(ids, id)
	}
	return proximity.NewCompletionSet(ids...), rows.Err()
}

// Put adds the points of set that are not stored yet. Sets only grow, so
// existing rows keep their completed_at.
func (d *DuckDB) Put(ctx context.Context, taskID string, set proximity.CompletionSet) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, id := range set.IDs() {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO completed_points (task_id, point_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			taskID, id); err != nil {
			return fmt.Errorf("insert %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (d *DuckDB) Close() error { return d.db.Close() }
