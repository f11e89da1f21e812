package session

import (
	"context"
	"errors"
)

var (
	// ErrEmptyMessage 表示用户消息为空或只包含空白字符。
	ErrEmptyMessage = errors.New("message is required")
	// ErrManagerClosed 表示会话注册表已在停机时关闭。
	ErrManagerClosed = errors.New("session manager is closed")
	// ErrMalformedReply 表示回复生成方返回了无法使用的结果。
	ErrMalformedReply = errors.New("malformed reply")
)

// 面向用户展示的失败原因。
const (
	ReasonTimeout     = "AI服务响应超时，请稍后重试"
	ReasonCanceled    = "请求已取消，请重新发送"
	ReasonMalformed   = "AI服务返回了无法解析的响应，请稍后重试"
	ReasonUnavailable = "AI服务暂时不可用，请稍后重试"
)

// GenerationError 表示回复生成失败。调用方可以使用相同的 session_id 重试，
// 用户消息已经记录在历史中，不会丢失。
type GenerationError struct {
	Reason string
	Err    error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return "generation failed: " + e.Reason
	}
	return "generation failed: " + e.Err.Error()
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// asGenerationError 把生成方返回的任意错误归类为 GenerationError。
func asGenerationError(err error) *GenerationError {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge
	}
	reason := ReasonUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(err, context.Canceled):
		reason = ReasonCanceled
	case errors.Is(err, ErrMalformedReply):
		reason = ReasonMalformed
	}
	return &GenerationError{Reason: reason, Err: err}
}
