package engine

import (
	"context"
	"fmt"

	"uniqsocial/client/internal/config"
	"uniqsocial/client/internal/credentials"

	"github.com/redis/go-redis/v9"
)

// Stores hands out credential stores per profile: Redis-backed when
// UNIQ_REDIS_ADDR is set, in memory otherwise.
type Stores struct {
	rdb *redis.Client
}

func OpenStores(ctx context.Context, cfg config.Client) (*Stores, error) {
	if cfg.RedisAddr == "" {
		return &Stores{}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	return &Stores{rdb: rdb}, nil
}

func (s *Stores) For(profile string) credentials.TokenStore {
	if s.rdb == nil {
		return credentials.NewMemoryTokenStore()
	}
	return credentials.NewRedisTokenStore(s.rdb, profile)
}

// Persistent reports whether tokens survive the process.
func (s *Stores) Persistent() bool { return s.rdb != nil }

func (s *Stores) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
