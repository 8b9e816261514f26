package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uniqsocial/client/internal/models"

	"github.com/redis/go-redis/v9"
)

// kv is the part of *redis.Client the store needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisTokenStore keeps tokens under auth:{profile}:access_token and
// auth:{profile}:refresh_token, so several profiles (or several Telegram
// chats) can share one Redis.
type RedisTokenStore struct {
	Redis   kv
	Profile string
}

func NewRedisTokenStore(rdb *redis.Client, profile string) *RedisTokenStore {
	return &RedisTokenStore{Redis: rdb, Profile: profile}
}

func (s *RedisTokenStore) accessKey() string  { return "auth:" + s.Profile + ":access_token" }
func (s *RedisTokenStore) refreshKey() string { return "auth:" + s.Profile + ":refresh_token" }

func (s *RedisTokenStore) get(ctx context.Context, key string) (string, error) {
	val, err := s.Redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return val, nil
}

func (s *RedisTokenStore) Tokens(ctx context.Context) (models.TokenPair, error) {
	access, err := s.get(ctx, s.accessKey())
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, err := s.get(ctx, s.refreshKey())
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *RedisTokenStore) SetTokens(ctx context.Context, tokens models.TokenPair) error {
	if err := s.Redis.Set(ctx, s.accessKey(), tokens.AccessToken, 0).Err(); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if err := s.Redis.Set(ctx, s.refreshKey(), tokens.RefreshToken, 0).Err(); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Clear(ctx context.Context) error {
	return s.Redis.Del(ctx, s.accessKey(), s.refreshKey()).Err()
}
