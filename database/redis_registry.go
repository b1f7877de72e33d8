package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRegistryKey = "knowledge:uploaded_files"

// RedisRegistry keeps uploaded file names in a Redis set so several
// instances share one view.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

var _ UploadRegistry = (*RedisRegistry)(nil)

func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}
	return client, nil
}

func NewRedisRegistry(client *redis.Client, key string) *RedisRegistry {
	if key == "" {
		key = DefaultRegistryKey
	}
	return &RedisRegistry{client: client, key: key}
}

func (r *RedisRegistry) Contains(ctx context.Context, fileName string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.key, fileName).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

// Add relies on SADD returning the number of new members.
func (r *RedisRegistry) Add(ctx context.Context, fileName string) (bool, error) {
	n, err := r.client.SAdd(ctx, r.key, fileName).Result()
	if err != nil {
		return false, fmt.Errorf("redis sadd: %w", err)
	}
	return n == 1, nil
}

func (r *RedisRegistry) Remove(ctx context.Context, fileName string) error {
	if err := r.client.SRem(ctx, r.key, fileName).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
