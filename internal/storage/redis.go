package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"questweaver/server/internal/config"
)

const (
	blobKeyPrefix   = "adventure:blob:"
	activeKeyPrefix = "adventure:active:"
	blobTTL         = 24 * time.Hour
	activeTTL       = 7 * 24 * time.Hour
)

// RedisStore caches adventure blobs and the per-identity active-adventure
// index. Everything here is a cache in front of MySQL; a miss is not an
// error condition for the composite store.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// PutBlob caches the serialized state for an adventure.
func (s *RedisStore) PutBlob(ctx context.Context, adventureID string, blob []byte) error {
	return s.client.Set(ctx, blobKeyPrefix+adventureID, blob, blobTTL).Err()
}

// GetBlob returns the cached blob, or (nil, false) on a miss.
func (s *RedisStore) GetBlob(ctx context.Context, adventureID string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, blobKeyPrefix+adventureID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// DelBlob drops the cached blob for an adventure.
func (s *RedisStore) DelBlob(ctx context.Context, adventureID string) error {
	return s.client.Del(ctx, blobKeyPrefix+adventureID).Err()
}

// SetActive records the identity's active adventure id.
func (s *RedisStore) SetActive(ctx context.Context, userID, adventureID string) error {
	return s.client.Set(ctx, activeKeyPrefix+userID, adventureID, activeTTL).Err()
}

// GetActive returns the identity's active adventure id, or "" on a miss.
func (s *RedisStore) GetActive(ctx context.Context, userID string) (string, error) {
	id, err := s.client.Get(ctx, activeKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// ClearActive drops the identity's active-adventure pointer.
func (s *RedisStore) ClearActive(ctx context.Context, userID string) error {
	return s.client.Del(ctx, activeKeyPrefix+userID).Err()
}
