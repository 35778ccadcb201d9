// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"askmynotes-go/internal/service"
	"askmynotes-go/pkg/log"
)

// ProfileHandler 负责处理学科档案相关的 API 请求。
type ProfileHandler struct {
	profileService service.ProfileService
}

// NewProfileHandler 创建一个新的 ProfileHandler 实例。
func NewProfileHandler(profileService service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// UpsertProfileRequest 定义了创建或更新学科档案 API 的请求体结构。
// 每个用户恰好注册三门学科。
type UpsertProfileRequest struct {
	Subject1 string `json:"subject1" binding:"required"`
	Subject2 string `json:"subject2" binding:"required"`
	Subject3 string `json:"subject3" binding:"required"`
}

// Upsert 处理创建或更新学科档案的请求。
func (h *ProfileHandler) Upsert(c *gin.Context) {
	var req UpsertProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("UpsertProfile: Invalid request payload, error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "无效的请求负载：三门学科都不能为空",
		})
		return
	}

	user, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.profileService.Upsert(user.ID, req.Subject1, req.Subject2, req.Subject3)
	if err != nil {
		log.Warnf("UpsertProfile: failed for user %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "学科档案已保存",
		"data":    profile,
	})
}

// Get 返回当前用户的学科档案。
func (h *ProfileHandler) Get(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.profileService.Get(user.ID)
	if err != nil {
		log.Warnf("GetProfile: failed for user %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    profile,
	})
}
