// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// SavedChat 对应于数据库中的 'saved_chats' 表。
// 每条记录都是自包含的：标识、标题、完整有序的消息和两个时间戳。
type SavedChat struct {
	// ChatID 是已保存对话的唯一标识，创建后不可变。
	ChatID string `gorm:"type:varchar(36);primaryKey" json:"chat_id"`
	// SessionID 记录保存时的来源会话，加载时默认恢复到该会话。
	SessionID string `gorm:"type:varchar(128);index" json:"session_id"`
	Title     string `gorm:"type:varchar(255);not null" json:"title"`
	// Messages 以 JSON 序列化存储在单列中。
	Messages     []ChatMessage `gorm:"type:longtext;serializer:json;not null" json:"messages"`
	MessageCount int           `gorm:"not null;default:0" json:"message_count"`
	// 时间戳由服务层显式维护，保证 updated_at 单调递增。
	CreatedAt time.Time `gorm:"precision:6;autoCreateTime:false;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"precision:6;autoUpdateTime:false;index;not null" json:"updated_at"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SavedChat) TableName() string {
	return "saved_chats"
}

// Summary 返回不含消息正文的元数据视图。
func (c *SavedChat) Summary() ChatSummary {
	return ChatSummary{
		ChatID:       c.ChatID,
		Title:        c.Title,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		MessageCount: c.MessageCount,
	}
}

// ChatSummary 是 list 接口返回的元数据，不包含消息正文。
type ChatSummary struct {
	ChatID       string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// ChatSearchHit 是全文检索返回的一条命中结果。
type ChatSearchHit struct {
	ChatID    string    `json:"chat_id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	Score     float64   `json:"score"`
	Snippet   string    `json:"snippet,omitempty"`
}
