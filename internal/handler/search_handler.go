package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tzappu-go/internal/service"
	"tzappu-go/pkg/log"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
	}
}

// Search 在已保存对话的标题和正文中检索。
func (h *SearchHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		log.Warnf("[SearchHandler] 搜索请求失败: q 参数为空")
		respond(c, http.StatusBadRequest, "无效的查询参数", nil)
		return
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", "10"))
	if err != nil || size <= 0 {
		size = 10
	}

	results, err := h.searchService.Search(c.Request.Context(), query, size)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, results)
}
