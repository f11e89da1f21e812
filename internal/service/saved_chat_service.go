package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tzappu-go/internal/model"
	"tzappu-go/internal/repository"
	"tzappu-go/pkg/log"
	"tzappu-go/pkg/tasks"
)

// maxIDAttempts 是生成 chat_id 遇到主键冲突时的最大尝试次数。
const maxIDAttempts = 3

// defaultTitleLayout 是未指定标题时的默认标题格式。
const defaultTitleLayout = "2006-01-02 15:04"

// SessionStore 是已保存对话服务对实时会话的最小依赖，session.Manager 实现了它。
type SessionStore interface {
	History(sessionID string) []model.ChatMessage
	Replace(sessionID string, messages []model.ChatMessage) error
}

// ChatEventPublisher 发布已保存对话的变更事件。
type ChatEventPublisher interface {
	Publish(ctx context.Context, task tasks.ChatIndexTask) error
}

// ChatExporter 把导出内容写入对象存储并返回可下载的链接。
type ChatExporter interface {
	Export(ctx context.Context, objectName string, data []byte) (string, error)
}

// SavedChatService 定义了已保存对话的业务逻辑接口。
type SavedChatService interface {
	Save(ctx context.Context, sessionID, title string) (*model.SavedChat, error)
	Load(ctx context.Context, chatID string) (*model.SavedChat, error)
	Restore(ctx context.Context, chatID, targetSessionID string) (*model.SavedChat, string, error)
	List(ctx context.Context) ([]model.ChatSummary, error)
	Rename(ctx context.Context, chatID, title string) (model.ChatSummary, error)
	Delete(ctx context.Context, chatID string) error
	Export(ctx context.Context, chatID string) (string, error)
}

type savedChatService struct {
	repo      repository.SavedChatRepository
	cache     repository.ChatCacheRepository
	sessions  SessionStore
	publisher ChatEventPublisher
	exporter  ChatExporter
	newID     func() string
}

// NewSavedChatService 创建一个新的 SavedChatService。
// cache、publisher 和 exporter 可以为 nil，对应的功能随之关闭。
func NewSavedChatService(
	repo repository.SavedChatRepository,
	cache repository.ChatCacheRepository,
	sessions SessionStore,
	publisher ChatEventPublisher,
	exporter ChatExporter,
) SavedChatService {
	return &savedChatService{
		repo:      repo,
		cache:     cache,
		sessions:  sessions,
		publisher: publisher,
		exporter:  exporter,
		newID:     uuid.NewString,
	}
}

// DefaultTitle 返回未指定标题时使用的标题。
func DefaultTitle(now time.Time) string {
	return "Chat " + now.Format(defaultTitleLayout)
}

// Save 把会话当前的历史保存为一条新的记录，每次调用都会生成新的 chat_id。
func (s *savedChatService) Save(ctx context.Context, sessionID, title string) (*model.SavedChat, error) {
	sessionID = NormalizeSessionID(sessionID)
	history := s.sessions.History(sessionID)
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	now := model.Now()
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultTitle(now)
	}

	chat := &model.SavedChat{
		SessionID:    sessionID,
		Title:        title,
		Messages:     history,
		MessageCount: len(history),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var err error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		chat.ChatID = s.newID()
		err = s.repo.Create(ctx, chat)
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			break
		}
		log.Warnf("chat_id %s 冲突，重新生成", chat.ChatID)
	}
	if err != nil {
		return nil, fmt.Errorf("保存对话失败: %w", err)
	}

	log.Infow("对话已保存", "chatId", chat.ChatID, "sessionId", sessionID, "messageCount", chat.MessageCount)
	s.publish(ctx, chat.ChatID, tasks.ActionSaved)
	return chat, nil
}

// Load 读取一条已保存对话，优先命中缓存。返回的记录归调用方所有。
// 回源前先取缓存代数，期间若有重命名或删除推进了代数，读到的旧记录不会写回缓存。
func (s *savedChatService) Load(ctx context.Context, chatID string) (*model.SavedChat, error) {
	generation, cacheable := int64(0), false
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, chatID)
		if err != nil {
			log.Warnf("读取对话缓存失败, chatId: %s, error: %v", chatID, err)
		} else if cached != nil {
			return cached, nil
		}
		if generation, err = s.cache.Generation(ctx, chatID); err != nil {
			log.Warnf("读取对话缓存代数失败, chatId: %s, error: %v", chatID, err)
		} else {
			cacheable = true
		}
	}

	chat, err := s.repo.FindByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, fmt.Errorf("加载对话失败: %w", err)
	}

	if cacheable {
		stored, err := s.cache.Set(ctx, chat, generation)
		if err != nil {
			log.Warnf("写入对话缓存失败, chatId: %s, error: %v", chatID, err)
		} else if !stored {
			log.Infof("对话 %s 在读取期间发生变更，跳过缓存写入", chatID)
		}
	}
	return chat, nil
}

// Restore 加载一条已保存对话并整体替换目标会话的历史。
// targetSessionID 为空时恢复到保存时的会话。
func (s *savedChatService) Restore(ctx context.Context, chatID, targetSessionID string) (*model.SavedChat, string, error) {
	chat, err := s.Load(ctx, chatID)
	if err != nil {
		return nil, "", err
	}

	target := strings.TrimSpace(targetSessionID)
	if target == "" {
		target = chat.SessionID
	}
	target = NormalizeSessionID(target)

	if err := s.sessions.Replace(target, model.CloneMessages(chat.Messages)); err != nil {
		return nil, "", fmt.Errorf("恢复会话失败: %w", err)
	}
	log.Infow("对话已恢复到会话", "chatId", chatID, "sessionId", target, "messageCount", len(chat.Messages))
	return chat, target, nil
}

// List 返回所有已保存对话的元数据，按 updated_at 倒序排列。
func (s *savedChatService) List(ctx context.Context) ([]model.ChatSummary, error) {
	summaries, err := s.repo.FindAllSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取对话列表失败: %w", err)
	}
	return summaries, nil
}

// Rename 修改标题并推进 updated_at。
func (s *savedChatService) Rename(ctx context.Context, chatID, title string) (model.ChatSummary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return model.ChatSummary{}, ErrInvalidTitle
	}

	chat, err := s.repo.UpdateTitle(ctx, chatID, title, model.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ChatSummary{}, ErrChatNotFound
		}
		return model.ChatSummary{}, fmt.Errorf("更新对话标题失败: %w", err)
	}

	s.invalidate(ctx, chatID)
	s.publish(ctx, chatID, tasks.ActionRenamed)
	return chat.Summary(), nil
}

// Delete 删除一条已保存对话，重复删除返回 ErrChatNotFound。
func (s *savedChatService) Delete(ctx context.Context, chatID string) error {
	if err := s.repo.Delete(ctx, chatID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrChatNotFound
		}
		return fmt.Errorf("删除对话失败: %w", err)
	}

	s.invalidate(ctx, chatID)
	s.publish(ctx, chatID, tasks.ActionDeleted)
	log.Infof("对话 %s 已删除", chatID)
	return nil
}

// Export 把对话序列化为 JSON 上传到对象存储，返回预签名下载链接。
func (s *savedChatService) Export(ctx context.Context, chatID string) (string, error) {
	if s.exporter == nil {
		return "", ErrExportDisabled
	}
	chat, err := s.Load(ctx, chatID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化对话失败: %w", err)
	}
	url, err := s.exporter.Export(ctx, ExportObjectName(chatID), data)
	if err != nil {
		return "", fmt.Errorf("导出对话失败: %w", err)
	}
	return url, nil
}

// ExportObjectName 返回对话导出文件在存储桶中的对象名。
func ExportObjectName(chatID string) string {
	return fmt.Sprintf("exports/%s.json", chatID)
}

func (s *savedChatService) invalidate(ctx context.Context, chatID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, chatID); err != nil {
		log.Warnf("清理对话缓存失败, chatId: %s, error: %v", chatID, err)
	}
}

// publish 发送变更事件。事件只影响搜索索引，失败时记录日志而不回滚主操作。
func (s *savedChatService) publish(ctx context.Context, chatID string, action tasks.ChatIndexAction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, tasks.NewChatIndexTask(chatID, action)); err != nil {
		log.Errorf("发布对话事件失败, chatId: %s, action: %s, error: %v", chatID, action, err)
	}
}
