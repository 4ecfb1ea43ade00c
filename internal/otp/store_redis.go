package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key prefix for pending login codes
const keyPrefix = "otp:login:"

const (
	fieldHash     = "hash"
	fieldAttempts = "attempts"
)

// RedisStore shares pending codes between instances. Expiry is the key TTL.
type RedisStore struct {
	client *redis.Client
	hasher hasher
}

func NewRedis(client *redis.Client, opts ...Option) *RedisStore {
	return &RedisStore{client: client, hasher: newHasher(opts)}
}

func (s *RedisStore) Save(ctx context.Context, key, code string, ttl time.Duration) error {
	hash, err := s.hasher.hash(code)
	if err != nil {
		return err
	}
	k := keyPrefix + key
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k, fieldHash, hash, fieldAttempts, 0)
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save login code: %w", err)
	}
	return nil
}

// Verify deletes the key on success. Of two concurrent correct guesses only
// the one whose DEL removed the key wins.
func (s *RedisStore) Verify(ctx context.Context, key, code string) (bool, error) {
	k := keyPrefix + key
	hash, err := s.client.HGet(ctx, k, fieldHash).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load login code: %w", err)
	}

	if !s.hasher.matches(hash, code) {
		attempts, err := s.client.HIncrBy(ctx, k, fieldAttempts, 1).Result()
		if err != nil {
			return false, fmt.Errorf("count login attempt: %w", err)
		}
		if attempts >= MaxAttempts {
			if err := s.client.Del(ctx, k).Err(); err != nil {
				return false, fmt.Errorf("burn login code: %w", err)
			}
		}
		return false, nil
	}

	removed, err := s.client.Del(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("consume login code: %w", err)
	}
	return removed == 1, nil
}

// Attempts returns the failed guesses recorded against key.
func (s *RedisStore) Attempts(ctx context.Context, key string) (int, error) {
	v, err := s.client.HGet(ctx, keyPrefix+key, fieldAttempts).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}
