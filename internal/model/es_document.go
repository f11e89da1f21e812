// Package model 定义了与数据库表对应的 Go 结构体。
package model

import (
	"strings"
	"time"
)

// ChatDocument 定义了存储在 Elasticsearch 中的已保存对话文档结构。
type ChatDocument struct {
	ChatID    string    `json:"chat_id"` // 唯一标识，同时作为 ES 文档 ID
	Title     string    `json:"title"`
	Content   string    `json:"content"` // 所有消息正文按顺序拼接
	UpdatedAt time.Time `json:"updated_at"`
}

// NewChatDocument 将已保存对话转换为检索文档。
func NewChatDocument(chat *SavedChat) ChatDocument {
	var b strings.Builder
	for i, m := range chat.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return ChatDocument{
		ChatID:    chat.ChatID,
		Title:     chat.Title,
		Content:   b.String(),
		UpdatedAt: chat.UpdatedAt,
	}
}
