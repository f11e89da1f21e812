// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"strings"

	"tzappu-go/internal/model"
	"tzappu-go/internal/session"
	"tzappu-go/pkg/log"
)

// DefaultSessionID 是请求未携带 session_id 时使用的会话。
const DefaultSessionID = "default"

// ConversationService 定义了实时会话的业务逻辑接口。
type ConversationService interface {
	Send(ctx context.Context, sessionID, message string) (model.ChatMessage, error)
	Clear(sessionID string)
	History(sessionID string) []model.ChatMessage
}

type conversationService struct {
	sessions *session.Manager
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(sessions *session.Manager) ConversationService {
	return &conversationService{sessions: sessions}
}

// NormalizeSessionID 去掉首尾空白，空值回退为 DefaultSessionID。
func NormalizeSessionID(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return DefaultSessionID
	}
	return sessionID
}

// Send 把用户消息交给会话管理器并返回助手回复。
func (s *conversationService) Send(ctx context.Context, sessionID, message string) (model.ChatMessage, error) {
	sessionID = NormalizeSessionID(sessionID)
	reply, err := s.sessions.Send(ctx, sessionID, message)
	if err != nil {
		return model.ChatMessage{}, err
	}
	log.Infow("会话回复完成", "sessionId", sessionID, "replyLength", len(reply.Content))
	return reply, nil
}

// Clear 清空会话的实时历史，不影响任何已保存的对话。
func (s *conversationService) Clear(sessionID string) {
	sessionID = NormalizeSessionID(sessionID)
	s.sessions.Clear(sessionID)
	log.Infof("会话 %s 已清空", sessionID)
}

// History 返回会话当前历史的快照。
func (s *conversationService) History(sessionID string) []model.ChatMessage {
	return s.sessions.History(NormalizeSessionID(sessionID))
}
