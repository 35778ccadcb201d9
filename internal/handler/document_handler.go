// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"askmynotes-go/internal/service"
	"askmynotes-go/pkg/log"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Upload 处理文档上传请求。请求为 multipart 表单，
// 包含 subject 字段与 file 文件字段，成功时返回 201 与摄取结果。
func (h *DocumentHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	subject := strings.TrimSpace(c.PostForm("subject"))
	if subject == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "缺少必要的参数：subject",
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    http.StatusBadRequest,
			"message": "未能获取上传的文件",
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		log.Error("Upload: failed to open uploaded file", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "读取上传文件失败",
		})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	result, err := h.docService.Upload(c.Request.Context(), user.ID, subject, fileHeader.Filename, file, fileHeader.Size, contentType)
	if err != nil {
		log.Warnf("Upload: failed for user %d, file '%s', error: %v", user.ID, fileHeader.Filename, err)
		respondError(c, err)
		return
	}

	log.Infof("Upload: document '%s' ingested for user %d, totalChunks: %d",
		result.DocumentName, user.ID, result.TotalChunks)
	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "文档上传成功",
		"data":    result,
	})
}

// List 返回当前用户的文档列表，支持 ?subject= 过滤。
func (h *DocumentHandler) List(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	subject := c.Query("subject")
	docs, err := h.docService.List(c.Request.Context(), user.ID, subject)
	if err != nil {
		log.Warnf("ListDocuments: failed for user %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "获取文档列表成功",
		"data":    docs,
	})
}
