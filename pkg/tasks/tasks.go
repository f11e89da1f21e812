// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

import "time"

// ChatIndexAction 表示已保存对话发生的变更类型。
type ChatIndexAction string

const (
	ActionSaved   ChatIndexAction = "saved"
	ActionRenamed ChatIndexAction = "renamed"
	ActionDeleted ChatIndexAction = "deleted"
)

// ChatIndexTask 描述一次已保存对话的变更事件。
// 只携带 ChatID，消费方以存储中的最新记录为准。
type ChatIndexTask struct {
	ChatID     string          `json:"chat_id"`
	Action     ChatIndexAction `json:"action"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewChatIndexTask 创建一个以当前时间为发生时间的事件。
func NewChatIndexTask(chatID string, action ChatIndexAction) ChatIndexTask {
	return ChatIndexTask{ChatID: chatID, Action: action, OccurredAt: time.Now().UTC()}
}
