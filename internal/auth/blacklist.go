package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenBlacklist checks revoked token IDs. Logout adds the access token's
// jti here for the remainder of its lifetime.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, userID, jti string) (bool, error)
	AddToBlacklist(ctx context.Context, userID, jti string, ttl time.Duration) error
}

type RedisBlacklist struct {
	client *redis.Client
}

func NewRedisBlacklist(client *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{client: client}
}

func (r *RedisBlacklist) IsBlacklisted(ctx context.Context, userID, jti string) (bool, error) {
	exists, err := r.client.Exists(ctx, blacklistKey(userID, jti)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (r *RedisBlacklist) AddToBlacklist(ctx context.Context, userID, jti string, ttl time.Duration) error {
	return r.client.Set(ctx, blacklistKey(userID, jti), "revoked", ttl).Err()
}

func blacklistKey(userID, jti string) string {
	return fmt.Sprintf("blacklist:%s:%s", userID, jti)
}
