package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Rin0913/devicewatch/internal/config"
)

func NewClient(cfg config.RedisConfig) *redis.Client {
	addr := cfg.Addr
	if addr == "" {
		addr = config.DefaultRedisAddr
	}

	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping fails fast when redis is not reachable at startup.
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping %s: %w", client.Options().Addr, err)
	}
	return nil
}
