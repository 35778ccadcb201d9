package database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/log"
)

// NewRedis 建立 Redis 连接并以 Ping 验证可用性。
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis client connected successfully")
	return rdb, nil
}
