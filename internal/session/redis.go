package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wellnest-io/chat-client/internal/config"
)

// RedisStore keeps session ids in Redis so continuity is shared across
// hosts running the client for the same user. Keys never expire;
// rotation is always explicit.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

func (s *RedisStore) keyFor(key string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.keyFor(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get session id: %w", err)
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.keyFor(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session id: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyFor(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete session id: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
