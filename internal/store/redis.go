package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/joeblew999/plat-survey/internal/proximity"
)

// DefaultKeyPrefix namespaces the per-task Redis sets.
const DefaultKeyPrefix = "survey:completed:"

// Redis keeps each task's completions in a Redis set.
type Redis struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to rawURL and pings it.
func OpenRedis(ctx context.Context, rawURL, prefix string) (*Redis, error) {
	if rawURL == "" {
		rawURL = "redis://127.0.0.1:6379/0"
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(taskID string) string { return r.prefix + taskID }

func (r *Redis) Get(ctx context.Context, taskID string) (proximity.CompletionSet, error) {
	ids, err := r.client.SMembers(ctx, r.key(taskID)).Result()
	if err != nil {
		return proximity.CompletionSet{}, err
	}
	return proximity.NewCompletionSet(ids...), nil
}

func (r *Redis) Put(ctx context.Context, taskID string, set proximity.CompletionSet) error {
	ids := set.IDs()
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	if len(members) == 0 {
		return nil
	}
	return r.client.SAdd(ctx, r.key(taskID), members...).Err()
}

func (r *Redis) Close() error { return r.client.Close() }
