// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tzappu-go/internal/service"
	"tzappu-go/internal/session"
	"tzappu-go/pkg/log"
)

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{"code": status, "message": message, "data": data})
}

func success(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "success", data)
}

// errorStatus 把业务错误映射为 HTTP 状态码和面向用户的提示。
func errorStatus(err error) (int, string) {
	var genErr *session.GenerationError
	switch {
	case errors.As(err, &genErr):
		return http.StatusBadGateway, genErr.Reason
	case errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest, "消息不能为空"
	case errors.Is(err, service.ErrInvalidTitle):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrChatNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrEmptyHistory):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidPlanRequest),
		errors.Is(err, service.ErrUnknownCity),
		errors.Is(err, service.ErrUnknownEvent):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrSearchDisabled),
		errors.Is(err, service.ErrExportDisabled),
		errors.Is(err, service.ErrPlannerUnavailable),
		errors.Is(err, session.ErrManagerClosed):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "服务器内部错误"
	}
}

func respondError(c *gin.Context, err error) {
	status, message := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("请求处理失败, path: %s, error: %v", c.FullPath(), err)
	}
	respond(c, status, message, nil)
}
