package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"tzappu-go/internal/middleware"
	"tzappu-go/internal/service"
	"tzappu-go/pkg/log"
)

// ChatHandler 负责实时会话的 REST 和 WebSocket 接口。
type ChatHandler struct {
	conversations service.ConversationService
	upgrader      websocket.Upgrader
}

// NewChatHandler 创建一个新的 ChatHandler。
// allowedOrigins 与 CORS 中间件使用同一份配置，限制 websocket 握手的来源。
func NewChatHandler(conversations service.ConversationService, allowedOrigins []string) *ChatHandler {
	originAllowed := middleware.OriginAllowed(allowedOrigins)
	return &ChatHandler{
		conversations: conversations,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(r.Header.Get("Origin"))
			},
		},
	}
}

type sendRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

// Send 处理一轮对话：记录用户消息并返回助手回复。
func (h *ChatHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "请求参数无效", nil)
		return
	}

	sessionID := service.NormalizeSessionID(req.SessionID)
	reply, err := h.conversations.Send(c.Request.Context(), sessionID, req.Message)
	if err != nil {
		respondError(c, err)
		return
	}
	success(c, gin.H{"response": reply.Content, "session_id": sessionID, "timestamp": reply.Timestamp})
}

// Clear 清空会话的实时历史，已保存的对话不受影响。
func (h *ChatHandler) Clear(c *gin.Context) {
	var req sessionRequest
	// 允许空请求体，此时清空默认会话
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respond(c, http.StatusBadRequest, "请求参数无效", nil)
			return
		}
	}
	sessionID := service.NormalizeSessionID(req.SessionID)
	h.conversations.Clear(sessionID)
	respond(c, http.StatusOK, "对话已清空", gin.H{"session_id": sessionID})
}

// History 返回会话当前历史的快照。
func (h *ChatHandler) History(c *gin.Context) {
	sessionID := service.NormalizeSessionID(c.Query("session_id"))
	success(c, gin.H{"session_id": sessionID, "messages": h.conversations.History(sessionID)})
}

type wsIncoming struct {
	Message string `json:"message"`
}

// Stream 处理一个 WebSocket 连接，每个文本帧都是一轮 send。
// 生成失败时回发错误帧，连接保持打开以便重试。
func (h *ChatHandler) Stream(c *gin.Context) {
	sessionID := service.NormalizeSessionID(c.Param("sessionId"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，会话: %s", sessionID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		text := string(message)
		// 兼容 JSON 帧 {"message":"..."} 和纯文本帧
		if trimmed := strings.TrimSpace(text); strings.HasPrefix(trimmed, "{") {
			var in wsIncoming
			if err := json.Unmarshal([]byte(trimmed), &in); err == nil {
				text = in.Message
			}
		}

		reply, err := h.conversations.Send(c.Request.Context(), sessionID, text)
		if err != nil {
			_, reason := errorStatus(err)
			if writeErr := writeFrame(conn, gin.H{"type": "error", "error": reason}); writeErr != nil {
				return
			}
		} else if writeErr := writeFrame(conn, gin.H{
			"type":       "reply",
			"session_id": sessionID,
			"content":    reply.Content,
			"timestamp":  reply.Timestamp,
		}); writeErr != nil {
			return
		}

		if err := writeFrame(conn, gin.H{
			"type":      "completion",
			"status":    "finished",
			"message":   "响应已完成",
			"timestamp": time.Now().UnixMilli(),
		}); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("写入 WebSocket 消息失败: %v", err)
		return err
	}
	return nil
}
