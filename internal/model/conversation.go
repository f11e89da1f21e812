// Package model 包含了应用的数据模型定义。
package model

import "time"

// 消息角色。system 只出现在发往模型的请求里，不进入会话历史。
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage 代表会话中的单条消息，创建后不再修改。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage 创建一条带当前时间戳的消息。
func NewChatMessage(role, content string) ChatMessage {
	return ChatMessage{Role: role, Content: content, Timestamp: Now()}
}

// CloneMessages 返回消息切片的副本，调用方可以随意修改而不影响原始历史。
func CloneMessages(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(messages))
	copy(out, messages)
	return out
}

// Now 返回截断到微秒的 UTC 时间，与数据库 datetime(6) 的精度一致。
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
