package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tzappu-go/internal/service"
	"tzappu-go/pkg/log"
)

// SavedChatHandler 处理已保存对话的 API 请求。
type SavedChatHandler struct {
	service service.SavedChatService
}

// NewSavedChatHandler 创建一个新的 SavedChatHandler。
func NewSavedChatHandler(service service.SavedChatService) *SavedChatHandler {
	return &SavedChatHandler{service: service}
}

type saveRequest struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
}

type renameRequest struct {
	Title string `json:"title"`
}

// Save 把会话当前历史保存为一条新的记录。
func (h *SavedChatHandler) Save(c *gin.Context) {
	var req saveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, "请求参数无效", nil)
			return
		}
	}

	chat, err := h.service.Save(c.Request.Context(), req.SessionID, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "对话已保存", gin.H{"chat_id": chat.ChatID, "title": chat.Title})
}

// Load 读取一条已保存对话，并用它替换目标会话的历史。
func (h *SavedChatHandler) Load(c *gin.Context) {
	chat, sessionID, err := h.service.Restore(c.Request.Context(), c.Param("chatId"), c.Query("session_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, gin.H{
		"chat_id":    chat.ChatID,
		"title":      chat.Title,
		"messages":   chat.Messages,
		"session_id": sessionID,
		"created_at": chat.CreatedAt,
		"updated_at": chat.UpdatedAt,
	})
}

// List 返回所有已保存对话的元数据，列表放在 data.chats 中。
func (h *SavedChatHandler) List(c *gin.Context) {
	chats, err := h.service.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, gin.H{"chats": chats})
}

// Update 修改已保存对话的标题。
func (h *SavedChatHandler) Update(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "请求参数无效", nil)
		return
	}

	summary, err := h.service.Rename(c.Request.Context(), c.Param("chatId"), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "对话已更新", summary)
}

// Delete 删除一条已保存对话。
func (h *SavedChatHandler) Delete(c *gin.Context) {
	chatID := c.Param("chatId")
	if err := h.service.Delete(c.Request.Context(), chatID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "对话已删除", gin.H{"chat_id": chatID})
}

// Export 把已保存对话导出到对象存储并返回下载链接。
func (h *SavedChatHandler) Export(c *gin.Context) {
	chatID := c.Param("chatId")
	url, err := h.service.Export(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Infof("对话 %s 已导出", chatID)
	success(c, gin.H{"chat_id": chatID, "url": url})
}
