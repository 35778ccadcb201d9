// Package middleware 存放 Gin 框架的中间件。
package middleware

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"askmynotes-go/pkg/log"
)

// maxLoggedBody 限制单条日志里请求/响应体的字节数，
// 问答答案和文档列表可能很大，超出部分截断。
const maxLoggedBody = 4096

// bodyLogWriter 在写出响应的同时把响应体复制到内部 buffer。
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func truncateForLog(b []byte) string {
	if len(b) > maxLoggedBody {
		return string(b[:maxLoggedBody]) + "...(truncated)"
	}
	return string(b)
}

// RequestLogger 记录每个请求的方法、路径、状态码、耗时与请求/响应体。
// 文件上传等 multipart 请求体不做捕获，避免日志爆炸。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		var requestBody []byte
		if c.Request.Body != nil && c.ContentType() != "multipart/form-data" {
			requestBody, _ = io.ReadAll(c.Request.Body)
			// 回填请求体，后续 handler 才能再次读取
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		blw := &bodyLogWriter{body: &bytes.Buffer{}, ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP 请求完成",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestBody", truncateForLog(requestBody),
			"responseBody", truncateForLog(blw.body.Bytes()),
		)
	}
}
