// Package store persists completion sets per task.
//
// Every backend implements proximity.Store. Open picks one from Config.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/joeblew999/plat-survey/internal/proximity"
)

// Store is a proximity.Store that holds resources.
type Store interface {
	proximity.Store
	Close() error
}

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverDuckDB   = "duckdb"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Config selects and configures a backend.
type Config struct {
	Driver      string
	DataDir     string // file and duckdb
	RedisURL    string // redis://[:password@]host:port/db
	KeyPrefix   string // redis key prefix
	PostgresDSN string
}

// Open returns the backend named by cfg.Driver. An empty driver selects file.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory:
		return NewMemory(), nil
	case "", DriverFile:
		return NewFile(cfg.DataDir)
	case DriverDuckDB:
		return OpenDuckDB(ctx, cfg.DataDir)
	case DriverRedis:
		return OpenRedis(ctx, cfg.RedisURL, cfg.KeyPrefix)
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
