package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisKV keeps the session keys in Redis so several client processes on
// one machine share a login.
type RedisKV struct {
	Redis  *redis.Client
	Prefix string
}

func NewRedisKV(rdb *redis.Client, prefix string) *RedisKV {
	return &RedisKV{Redis: rdb, Prefix: prefix}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.Redis.Get(ctx, r.Prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Set stores the value without expiry; token expiry is decided by the
// session layer from the JWT itself.
func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	return r.Redis.Set(ctx, r.Prefix+key, value, 0).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.Redis.Del(ctx, r.Prefix+key).Err()
}
