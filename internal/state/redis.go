package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

const redisKeyPrefix = "agenda-watch:fingerprint:"

// RedisStore keeps records as JSON strings in Redis.
type RedisStore struct {
	client *redis.Client
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Load(ctx context.Context, sourceID string) (*models.FingerprintRecord, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+sourceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get fingerprint for %s: %w", sourceID, err)
	}

	var rec models.FingerprintRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fingerprint for %s: %w", sourceID, err)
	}
	return &rec, nil
}

func (s *RedisStore) Save(ctx context.Context, rec models.FingerprintRecord) error {
	if rec.SourceID == "" {
		return fmt.Errorf("source id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal fingerprint: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+rec.SourceID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set fingerprint for %s: %w", rec.SourceID, err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
