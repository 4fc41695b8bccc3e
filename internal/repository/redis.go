package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cablepark/internal/config"

	"github.com/redis/go-redis/v9"
)

const weekKeyPrefix = "grid:week"

// RedisGridCache keeps serialized week views in Redis. The schedule revision
// is part of the key, so a write anywhere in the schedule makes older
// entries unreachable and they expire on their own.
type RedisGridCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisGridCache(client *redis.Client, ttl time.Duration) *RedisGridCache {
	return &RedisGridCache{client: client, ttl: ttl}
}

func weekKey(weekStart time.Time, revision int64) string {
	return fmt.Sprintf("%s:%d:%d", weekKeyPrefix, weekStart.Unix(), revision)
}

func (r *RedisGridCache) GetWeek(ctx context.Context, weekStart time.Time, revision int64) ([]byte, bool, error) {
	if r.client == nil {
		return nil, false, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, weekKey(weekStart, revision)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get week from redis: %w", err)
	}
	return val, true, nil
}

func (r *RedisGridCache) SetWeek(ctx context.Context, weekStart time.Time, revision int64, payload []byte) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if err := r.client.Set(ctx, weekKey(weekStart, revision), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set week in redis: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
