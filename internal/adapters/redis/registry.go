// Package redis mirrors recorded samples into a capped Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"cpumon/internal/config"

	"github.com/redis/go-redis/v9"
)

func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis not responding: %w", err)
	}

	return client, nil
}

type Registry struct {
	redis *redis.Client
}

func NewRegistry(r *redis.Client) *Registry {
	return &Registry{redis: r}
}

func (r *Registry) Append(ctx context.Context, stream string, payload any, maxLen int64) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("registry marshal failed: %w", err)
	}

	id, err := r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"data": data,
		},
		MaxLen: maxLen,
		Approx: true,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("registry xadd failed: %w", err)
	}

	return id, nil
}

func (r *Registry) GetLatest(ctx context.Context, stream string) ([]redis.XMessage, error) {
	msgs, err := r.redis.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return nil, fmt.Errorf("registry xrevrange failed: %w", err)
	}

	return msgs, nil
}
