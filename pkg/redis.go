package pkg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisTimeout = 5 * time.Second

// RedisStore stores JSON values in Redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Set stores a value in Redis with a TTL. The value is JSON-serialized.
func (slf *RedisStore) Set(key string, value any, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return slf.client.Set(ctx, key, data, ttl).Err()
}

// Get retrieves a value from Redis and JSON-deserializes it into dest.
// Returns redis.Nil if the key does not exist.
func (slf *RedisStore) Get(key string, dest any) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	data, err := slf.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}

	return json.Unmarshal(data, dest)
}

// Delete removes a key from Redis.
func (slf *RedisStore) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	return slf.client.Del(ctx, key).Err()
}

// Exists checks whether a key exists in Redis.
func (slf *RedisStore) Exists(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	n, err := slf.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// LatestRunKey is the key under which the last run summary a user made of a
// workflow is cached.
func LatestRunKey(userID, workflowID string) string {
	return fmt.Sprintf("user:%s:workflow:%s:run:latest", userID, workflowID)
}

// IsRedisNil returns true if the error is a redis key-not-found error.
func IsRedisNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
