// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"askmynotes-go/internal/model"
	"askmynotes-go/internal/service"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/log"
	"askmynotes-go/pkg/token"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// ChatHandler 负责处理 WebSocket 流式问答连接。
type ChatHandler struct {
	chatService   service.ChatService
	userService   service.UserService
	jwtManager    *token.JWTManager
	stopToken     string
	stopTokenLock sync.Mutex
	// 每连接停止标志
	stopFlags sync.Map // key: session pointer string, value: bool
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// GetWebsocketStopToken 返回一个可用于停止流的令牌。
func (h *ChatHandler) GetWebsocketStopToken(c *gin.Context) {
	h.stopTokenLock.Lock()
	defer h.stopTokenLock.Unlock()
	// 在多实例部署中这应该在 Redis 中生成和存储，
	// 这里使用一个单一的、轮换的令牌。
	h.stopToken = "WSS_STOP_CMD_" + token.GenerateRandomString(16)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"cmdToken": h.stopToken}})
}

// streamRequest 是 WebSocket 消息中的一次问答请求。
type streamRequest struct {
	Type     string `json:"type,omitempty"`
	CmdToken string `json:"_internal_cmd_token,omitempty"`
	Subject  string `json:"subject"`
	Question string `json:"question"`
	TopK     int    `json:"topK"`
}

// Handle 处理一个传入的 WebSocket 连接。token 在路径参数中携带，
// 每条消息是一次独立的问答请求，作用域校验与阻塞式问答完全一致。
func (h *ChatHandler) Handle(c *gin.Context) {
	tokenString := c.Param("token")
	claims, err := h.jwtManager.VerifyToken(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
		return
	}

	user, err := h.userService.GetByID(claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "用户不存在", "data": nil})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立, userID: %d", user.ID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var req streamRequest
		if err := json.Unmarshal(message, &req); err != nil {
			h.writeError(conn, apperr.Validationf("message must be a JSON object with subject and question"))
			continue
		}

		// 停止指令: {"type":"stop","_internal_cmd_token":"..."}
		if req.Type == "stop" {
			h.stopTokenLock.Lock()
			valid := req.CmdToken != "" && req.CmdToken == h.stopToken
			h.stopTokenLock.Unlock()
			if valid {
				h.stopFlags.Store(sessionKey(conn), true)
				resp := map[string]interface{}{
					"type":      "stop",
					"message":   "响应已停止",
					"timestamp": time.Now().UnixMilli(),
				}
				b, _ := json.Marshal(resp)
				_ = conn.WriteMessage(websocket.TextMessage, b)
			}
			continue
		}

		shouldStop := func() bool {
			v, ok := h.stopFlags.Load(sessionKey(conn))
			return ok && v.(bool)
		}
		// 清除上一轮的停止标志
		h.stopFlags.Delete(sessionKey(conn))

		qaReq := model.QueryRequest{Subject: req.Subject, Question: req.Question, TopK: req.TopK}
		if err := h.chatService.StreamAnswer(c.Request.Context(), user.ID, qaReq, conn, shouldStop); err != nil {
			log.Errorf("处理流式问答失败, userID: %d, error: %v", user.ID, err)
			h.writeError(conn, err)
			// 校验类错误后连接仍可复用，基础设施错误则关闭连接
			if !apperr.IsValidation(err) {
				break
			}
		}
	}
}

// writeError 以统一的 JSON 结构下发错误信息。
func (h *ChatHandler) writeError(conn *websocket.Conn, err error) {
	msg := "AI服务暂时不可用，请稍后重试"
	if apperr.IsValidation(err) {
		msg = err.Error()
	}
	resp := map[string]interface{}{
		"type":      "error",
		"error":     msg,
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(resp)
	if werr := conn.WriteMessage(websocket.TextMessage, b); werr != nil {
		log.Warnf("下发错误消息失败: %v", werr)
	}
}

func sessionKey(conn *websocket.Conn) string {
	return fmt.Sprintf("%p", conn)
}
