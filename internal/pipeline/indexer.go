// Package pipeline 定义了已保存对话检索索引的维护流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"tzappu-go/internal/model"
	"tzappu-go/internal/repository"
	"tzappu-go/pkg/log"
	"tzappu-go/pkg/tasks"
)

// ChatIndex 是索引器对检索引擎的依赖，es.ChatIndex 实现了它。
type ChatIndex interface {
	IndexChat(ctx context.Context, doc model.ChatDocument) error
	DeleteChat(ctx context.Context, chatID string) error
}

// Indexer 根据对话变更事件同步检索索引。
// 事件只携带 chat_id，处理时总是以数据库中的最新状态为准，重复或乱序投递都会收敛到同一结果。
type Indexer struct {
	repo  repository.SavedChatRepository
	index ChatIndex
}

// NewIndexer 创建一个新的 Indexer 实例。
func NewIndexer(repo repository.SavedChatRepository, index ChatIndex) *Indexer {
	return &Indexer{repo: repo, index: index}
}

// Process 处理一条对话变更事件。
func (p *Indexer) Process(ctx context.Context, task tasks.ChatIndexTask) error {
	log.Infof("[Indexer] 处理对话事件, chatId: %s, action: %s", task.ChatID, task.Action)

	chat, err := p.repo.FindByID(ctx, task.ChatID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := p.index.DeleteChat(ctx, task.ChatID); err != nil {
			return fmt.Errorf("从索引删除对话失败: %w", err)
		}
		log.Infof("[Indexer] 对话 %s 已不存在，已从索引移除", task.ChatID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("读取对话失败: %w", err)
	}

	if err := p.index.IndexChat(ctx, model.NewChatDocument(chat)); err != nil {
		return fmt.Errorf("索引对话失败: %w", err)
	}
	log.Infof("[Indexer] 对话 %s 已写入索引", task.ChatID)
	return nil
}

// InlinePublisher 在未启用 Kafka 时直接在调用方的协程里处理事件。
type InlinePublisher struct {
	indexer *Indexer
}

// NewInlinePublisher 创建一个同步调用 Indexer 的发布器。
func NewInlinePublisher(indexer *Indexer) *InlinePublisher {
	return &InlinePublisher{indexer: indexer}
}

// Publish 同步处理事件。
func (p *InlinePublisher) Publish(ctx context.Context, task tasks.ChatIndexTask) error {
	return p.indexer.Process(ctx, task)
}
