package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// SessionStats 提供实时会话的统计信息，session.Manager 实现了它。
type SessionStats interface {
	Stats() map[string]int
}

// WeatherStatus 报告天气规划是否可用，service.PlannerService 实现了它。
type WeatherStatus interface {
	Available() bool
}

// HealthHandler 处理健康检查请求。
type HealthHandler struct {
	sessions SessionStats
	weather  WeatherStatus
}

// NewHealthHandler 创建一个新的 HealthHandler。
func NewHealthHandler(sessions SessionStats, weather WeatherStatus) *HealthHandler {
	return &HealthHandler{sessions: sessions, weather: weather}
}

// Health 返回服务存活状态、当前的会话数量和天气规划的可用性。
func (h *HealthHandler) Health(c *gin.Context) {
	weather := "unavailable"
	if h.weather != nil && h.weather.Available() {
		weather = "available"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"sessions":        h.sessions.Stats(),
		"weather_service": weather,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}
