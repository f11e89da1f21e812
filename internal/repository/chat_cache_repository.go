// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"tzappu-go/internal/model"
)

// generationTTL 是代数计数器的保留时间，需要远长于一次回源读取的耗时。
const generationTTL = 24 * time.Hour

// ChatCacheRepository 定义了已保存对话在 Redis 中的读缓存操作。
// 缓存未命中时 Get 返回 (nil, nil)。
//
// 每条对话有一个代数计数器，Invalidate 会推进它。回源读取前先用 Generation
// 取得当前代数，Set 只在代数未变时写入，避免把已删除或已改名的旧记录写回缓存。
type ChatCacheRepository interface {
	Get(ctx context.Context, chatID string) (*model.SavedChat, error)
	Generation(ctx context.Context, chatID string) (int64, error)
	Set(ctx context.Context, chat *model.SavedChat, generation int64) (bool, error)
	Invalidate(ctx context.Context, chatID string) error
}

type redisChatCacheRepository struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewChatCacheRepository 创建一个新的 ChatCacheRepository 实例。
func NewChatCacheRepository(redisClient *redis.Client, ttl time.Duration) ChatCacheRepository {
	return &redisChatCacheRepository{redisClient: redisClient, ttl: ttl}
}

func chatCacheKey(chatID string) string {
	return fmt.Sprintf("saved_chat:%s", chatID)
}

func chatGenerationKey(chatID string) string {
	return fmt.Sprintf("saved_chat_gen:%s", chatID)
}

// Get 从 Redis 读取整条已保存对话。
func (r *redisChatCacheRepository) Get(ctx context.Context, chatID string) (*model.SavedChat, error) {
	jsonData, err := r.redisClient.Get(ctx, chatCacheKey(chatID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached chat: %w", err)
	}
	var chat model.SavedChat
	if err := json.Unmarshal([]byte(jsonData), &chat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached chat: %w", err)
	}
	return &chat, nil
}

// Generation 返回对话当前的缓存代数，从未失效过的对话为 0。
func (r *redisChatCacheRepository) Generation(ctx context.Context, chatID string) (int64, error) {
	return readGeneration(ctx, r.redisClient, chatID)
}

type generationReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readGeneration(ctx context.Context, c generationReader, chatID string) (int64, error) {
	gen, err := c.Get(ctx, chatGenerationKey(chatID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// Set 以 JSON 形式写入整条记录，读者不会看到写了一半的数据。
// 写入在 WATCH 事务中进行，代数与 generation 不一致时放弃写入并返回 false。
func (r *redisChatCacheRepository) Set(ctx context.Context, chat *model.SavedChat, generation int64) (bool, error) {
	jsonData, err := json.Marshal(chat)
	if err != nil {
		return false, fmt.Errorf("failed to marshal chat: %w", err)
	}

	stored := false
	err = r.redisClient.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readGeneration(ctx, tx, chat.ChatID)
		if err != nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, chatCacheKey(chat.ChatID), jsonData, r.ttl)
			return nil
		})
		if err == nil {
			stored = true
		}
		return err
	}, chatGenerationKey(chat.ChatID))
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cache chat: %w", err)
	}
	return stored, nil
}

// Invalidate 推进代数并删除缓存条目，在重命名和删除之后调用。
func (r *redisChatCacheRepository) Invalidate(ctx context.Context, chatID string) error {
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, chatGenerationKey(chatID))
		pipe.Expire(ctx, chatGenerationKey(chatID), generationTTL)
		pipe.Del(ctx, chatCacheKey(chatID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cached chat: %w", err)
	}
	return nil
}
