package aliases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/randybritsch/c4-mcp-app-sub000/domain/repositories"
)

const keyPrefix = "room-aliases:"

// RedisStore keeps room aliases in one Redis hash per client so they survive
// restarts and are shared between relay instances.
type RedisStore struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisStore connects to url and verifies the connection.
func NewRedisStore(url string, log *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Successfully connected to Redis alias store")
	return NewRedisStoreWithClient(client, log), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, log *zap.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func hashKey(clientKey string) string {
	return keyPrefix + clientKey
}

// Get implements repositories.AliasStore. A missing alias is (nil, nil).
func (s *RedisStore) Get(ctx context.Context, clientKey, query string) (*repositories.RoomAlias, error) {
	raw, err := s.client.HGet(ctx, hashKey(clientKey), query).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read room alias: %w", err)
	}

	var alias repositories.RoomAlias
	if err := json.Unmarshal([]byte(raw), &alias); err != nil {
		return nil, fmt.Errorf("failed to decode room alias: %w", err)
	}
	return &alias, nil
}

// Set implements repositories.AliasStore
func (s *RedisStore) Set(ctx context.Context, clientKey, query string, alias repositories.RoomAlias) error {
	raw, err := json.Marshal(alias)
	if err != nil {
		return fmt.Errorf("failed to encode room alias: %w", err)
	}
	if err := s.client.HSet(ctx, hashKey(clientKey), query, raw).Err(); err != nil {
		return fmt.Errorf("failed to store room alias: %w", err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
