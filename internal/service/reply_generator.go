package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"tzappu-go/internal/config"
	"tzappu-go/internal/model"
	"tzappu-go/internal/session"
	"tzappu-go/pkg/llm"
	"tzappu-go/pkg/log"
)

// DefaultSystemPrompt 是未配置 llm.prompt.system 时使用的助手人设。
const DefaultSystemPrompt = `You are a friendly and empathetic assistant named Tzappu.
You are specialized in vacations, accommodations and booking recommendations. If the user asks about unrelated topics, politely decline.
Use a warm, conversational tone, ask follow-up questions to better understand the user, break long answers into short paragraphs and admit when you are not sure about something.`

// replyGenerator 把会话历史转换为模型请求，实现 session.Generator。
type replyGenerator struct {
	llmClient llm.Client
	cfg       config.LLMConfig
}

// NewReplyGenerator 创建基于 LLM 客户端的回复生成器。
func NewReplyGenerator(llmClient llm.Client, cfg config.LLMConfig) session.Generator {
	return &replyGenerator{llmClient: llmClient, cfg: cfg}
}

// Generate 在历史前加上 system 提示后调用模型，system 消息不会写回会话历史。
func (g *replyGenerator) Generate(ctx context.Context, history []model.ChatMessage) (model.ChatMessage, error) {
	messages := g.composeMessages(history)
	content, err := g.llmClient.ChatMessages(ctx, messages, llm.ParamsFromConfig(g.cfg.Generation))
	if err != nil {
		return model.ChatMessage{}, classifyLLMError(err)
	}
	return model.NewChatMessage(model.RoleAssistant, content), nil
}

func (g *replyGenerator) composeMessages(history []model.ChatMessage) []llm.Message {
	systemPrompt := g.cfg.Prompt.System
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: model.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	return msgs
}

// classifyLLMError 把客户端错误转换为带用户可读原因的 GenerationError。
// 超时和取消交给 session.Manager 统一归类。
func classifyLLMError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, llm.ErrMalformedResponse) {
		return &session.GenerationError{Reason: session.ReasonMalformed, Err: err}
	}
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		log.Errorf("模型服务返回错误状态: %d", apiErr.StatusCode)
		reason := session.ReasonUnavailable
		if apiErr.StatusCode == http.StatusTooManyRequests {
			reason = "AI服务繁忙，请稍后重试"
		}
		return &session.GenerationError{Reason: reason, Err: err}
	}
	return &session.GenerationError{Reason: session.ReasonUnavailable, Err: fmt.Errorf("llm call failed: %w", err)}
}
