// Package db opens the embedded DuckDB database that holds completed points.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

func (c Config) path() string {
	name := c.DBName
	if name == "" {
		name = "survey"
	}
	return filepath.Join(c.DataDir, "duckdb", name+".duckdb")
}

// Schema creates the completion table.
const Schema = `
CREATE TABLE IF NOT EXISTS completed_points (
	task_id      VARCHAR NOT NULL,
	point_id     VARCHAR NOT NULL,
	completed_at TIMESTAMP NOT NULL DEFAULT current_timestamp,
	PRIMARY KEY (task_id, point_id)
)`

// Open opens (creating if needed) the database under DataDir/duckdb and applies Schema.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	p := cfg.path()
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
	}
	conn, err := sql.Open("duckdb", p)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", p, err)
	}
	if _, err := conn.ExecContext(ctx, Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate duckdb: %w", err)
	}
	return conn, nil
}
