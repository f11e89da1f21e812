package database

import (
	"context"

	"github.com/go-redis/redis/v8"

	"tzappu-go/internal/config"
	"tzappu-go/pkg/log"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。未配置地址时返回 nil，已保存对话缓存随之关闭。
func InitRedis(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		log.Info("未配置 Redis 地址，跳过已保存对话缓存")
		return nil
	}

	RDB = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx := context.Background()
	if err := RDB.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to redis", err)
	}

	log.Info("Redis client connected successfully")
	return RDB
}
