package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tzappu-go/internal/service"
)

// PlannerHandler 处理活动天气规划的 API 请求。
type PlannerHandler struct {
	planner service.PlannerService
}

// NewPlannerHandler 创建一个新的 PlannerHandler。
func NewPlannerHandler(planner service.PlannerService) *PlannerHandler {
	return &PlannerHandler{planner: planner}
}

// planRequest 中 year 和 limit 可省略，month 必填。
type planRequest struct {
	City  string `json:"city"`
	Event string `json:"event"`
	Month *int   `json:"month"`
	Year  *int   `json:"year"`
	Limit *int   `json:"limit"`
}

// PlanEvent 返回指定城市和月份中最适合该活动的日子。
func (h *PlannerHandler) PlanEvent(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "请求参数无效", nil)
		return
	}
	if req.Month == nil {
		respond(c, http.StatusBadRequest, "month 不能为空", nil)
		return
	}

	in := service.PlanRequest{
		City:  req.City,
		Event: req.Event,
		Month: *req.Month,
		Year:  service.DefaultPlanYear,
		Limit: service.DefaultPlanLimit,
	}
	if req.Year != nil {
		in.Year = *req.Year
	}
	if req.Limit != nil {
		in.Limit = *req.Limit
	}

	plan, err := h.planner.Plan(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, plan.Message, plan)
}

// AvailableOptions 返回支持的城市和活动类型。
func (h *PlannerHandler) AvailableOptions(c *gin.Context) {
	if !h.planner.Available() {
		respondError(c, service.ErrPlannerUnavailable)
		return
	}
	success(c, gin.H{"cities": h.planner.Cities(), "events": h.planner.Events()})
}

// EventCriteria 返回某种活动的评分标准。
func (h *PlannerHandler) EventCriteria(c *gin.Context) {
	if !h.planner.Available() {
		respondError(c, service.ErrPlannerUnavailable)
		return
	}
	event := strings.ToLower(strings.TrimSpace(c.Param("event")))
	criteria, ok := h.planner.Criteria(event)
	if !ok {
		msg := fmt.Sprintf("活动 %q 不存在，可选活动: %s", event, strings.Join(h.planner.Events(), ", "))
		respond(c, http.StatusNotFound, msg, nil)
		return
	}
	success(c, gin.H{"event": event, "criteria": criteria})
}
