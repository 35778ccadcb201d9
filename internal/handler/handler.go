// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"askmynotes-go/internal/model"
	"askmynotes-go/pkg/apperr"
)

// respondError 将业务错误统一映射为 HTTP 响应：
// validation 错误映射为 400，infrastructure 错误映射为 503，其余映射为 500。
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindInfrastructure:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}

// currentUser 从 Gin 上下文中取出 AuthMiddleware 注入的用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	userValue, exists := c.Get("user")
	if !exists {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "无法获取用户信息",
		})
		return nil, false
	}
	user, ok := userValue.(*model.User)
	if !ok || user == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "用户数据类型错误",
		})
		return nil, false
	}
	return user, true
}
