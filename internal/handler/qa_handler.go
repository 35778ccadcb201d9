// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"askmynotes-go/internal/model"
	"askmynotes-go/internal/service"
	"askmynotes-go/pkg/log"
)

// QAHandler 负责处理基于文档的问答 API 请求。
type QAHandler struct {
	queryService service.QueryService
}

// NewQAHandler 创建一个新的 QAHandler 实例。
func NewQAHandler(queryService service.QueryService) *QAHandler {
	return &QAHandler{queryService: queryService}
}

// Query 处理一次阻塞式问答请求。
func (h *QAHandler) Query(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[QAHandler] 无效的请求负载, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：subject 和 question 不能为空",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	resp, err := h.queryService.Query(c.Request.Context(), user.ID, req)
	if err != nil {
		log.Warnf("[QAHandler] 问答失败, userID: %d, subject: '%s', error: %v", user.ID, req.Subject, err)
		respondError(c, err)
		return
	}

	log.Infof("[QAHandler] 问答成功, userID: %d, subject: '%s', 来源数: %d", user.ID, req.Subject, len(resp.Sources))
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    resp,
	})
}

// History 返回当前用户在某学科下最近的问答历史。
func (h *QAHandler) History(c *gin.Context) {
	subject := c.Query("subject")
	if subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少必要的参数：subject",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	messages, err := h.queryService.History(c.Request.Context(), user.ID, subject)
	if err != nil {
		log.Warnf("[QAHandler] 获取问答历史失败, userID: %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    messages,
	})
}
