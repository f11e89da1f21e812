// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tzappu-go/internal/model"
)

// SavedChatRepository 接口定义了已保存对话的持久化操作。
// 找不到记录时返回 gorm.ErrRecordNotFound，主键冲突时返回 gorm.ErrDuplicatedKey。
type SavedChatRepository interface {
	Create(ctx context.Context, chat *model.SavedChat) error
	FindByID(ctx context.Context, chatID string) (*model.SavedChat, error)
	FindAllSummaries(ctx context.Context) ([]model.ChatSummary, error)
	UpdateTitle(ctx context.Context, chatID, title string, now time.Time) (*model.SavedChat, error)
	Delete(ctx context.Context, chatID string) error
}

// savedChatRepository 是 SavedChatRepository 接口的 GORM 实现。
type savedChatRepository struct {
	db *gorm.DB
}

// NewSavedChatRepository 创建一个新的 SavedChatRepository 实例。
func NewSavedChatRepository(db *gorm.DB) SavedChatRepository {
	return &savedChatRepository{db: db}
}

// Create 在数据库中插入一条完整的已保存对话记录。
func (r *savedChatRepository) Create(ctx context.Context, chat *model.SavedChat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

// FindByID 根据 chat_id 查找一条已保存对话。
func (r *savedChatRepository) FindByID(ctx context.Context, chatID string) (*model.SavedChat, error) {
	var chat model.SavedChat
	err := r.db.WithContext(ctx).Where("chat_id = ?", chatID).First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindAllSummaries 返回所有已保存对话的元数据，按 updated_at 倒序排列，不读取消息正文。
func (r *savedChatRepository) FindAllSummaries(ctx context.Context) ([]model.ChatSummary, error) {
	var chats []model.SavedChat
	err := r.db.WithContext(ctx).
		Select("chat_id", "title", "message_count", "created_at", "updated_at").
		Order("updated_at desc").
		Order("chat_id asc").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ChatSummary, 0, len(chats))
	for i := range chats {
		summaries = append(summaries, chats[i].Summary())
	}
	return summaries, nil
}

// UpdateTitle 在一个事务中锁定记录、修改标题并推进 updated_at。
// 新的 updated_at 至少比旧值大 1 微秒，即使时钟回拨也保持单调递增。
func (r *savedChatRepository) UpdateTitle(ctx context.Context, chatID, title string, now time.Time) (*model.SavedChat, error) {
	var chat model.SavedChat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("chat_id = ?", chatID).
			First(&chat).Error; err != nil {
			return err
		}

		next := now
		if !next.After(chat.UpdatedAt) {
			next = chat.UpdatedAt.Add(time.Microsecond)
		}

		if err := tx.Model(&model.SavedChat{}).
			Where("chat_id = ?", chatID).
			Updates(map[string]interface{}{"title": title, "updated_at": next}).Error; err != nil {
			return err
		}
		chat.Title = title
		chat.UpdatedAt = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// Delete 根据 chat_id 删除一条记录；记录不存在时返回 gorm.ErrRecordNotFound。
func (r *savedChatRepository) Delete(ctx context.Context, chatID string) error {
	res := r.db.WithContext(ctx).Where("chat_id = ?", chatID).Delete(&model.SavedChat{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
