package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/mot-engine/internal/models"
)

const keyPrefix = "mot:"

// RedisStore keeps paths as JSON values with a sliding TTL so that any
// instance behind the load balancer can serve a player
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a store on an existing client.
// A zero ttl keeps paths until Sweep removes them.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func pathKey(id string) string {
	return keyPrefix + "path:" + id
}

func indexKey(sessionCode, username string) string {
	return keyPrefix + "player:" + playerKey(sessionCode, username)
}

func (s *RedisStore) Create(ctx context.Context, path *models.PlayerPath) error {
	data, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("failed to encode path: %w", err)
	}

	ok, err := s.client.SetNX(ctx, indexKey(path.SessionCode, path.Username), path.ID, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve username: %w", err)
	}
	if !ok {
		return ErrExists
	}

	if err := s.client.Set(ctx, pathKey(path.ID), data, s.ttl).Err(); err != nil {
		s.client.Del(ctx, indexKey(path.SessionCode, path.Username))
		return fmt.Errorf("failed to store path: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*models.PlayerPath, error) {
	data, err := s.client.Get(ctx, pathKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get path: %w", err)
	}

	var p models.PlayerPath
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode path: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) Lookup(ctx context.Context, sessionCode, username string) (*models.PlayerPath, error) {
	id, err := s.client.Get(ctx, indexKey(sessionCode, username)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up player: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) Save(ctx context.Context, path *models.PlayerPath) error {
	data, err := json.Marshal(path)
	if err != nil {
		return fmt.Errorf("failed to encode path: %w", err)
	}

	ok, err := s.client.SetXX(ctx, pathKey(path.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save path: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	if s.ttl > 0 {
		s.client.Expire(ctx, indexKey(path.SessionCode, path.Username), s.ttl)
	}
	return nil
}

// Sweep scans all path keys; with a TTL configured Redis expires most of them first
func (s *RedisStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	var cursor uint64
	removed := 0

	for {
		keys, next, err := s.client.Scan(ctx, cursor, keyPrefix+"path:*", 100).Result()
		if err != nil {
			return removed, fmt.Errorf("failed to scan paths: %w", err)
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				continue
			}
			var p models.PlayerPath
			if err := json.Unmarshal(data, &p); err != nil {
				slog.Warn("dropping undecodable path", "key", key, "error", err)
				s.client.Del(ctx, key)
				continue
			}
			if !p.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := s.client.Del(ctx, key, indexKey(p.SessionCode, p.Username)).Err(); err != nil {
				slog.Warn("failed to delete path", "key", key, "error", err)
				continue
			}
			removed++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}
