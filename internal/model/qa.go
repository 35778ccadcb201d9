package model

import "time"

// QueryRequest 是问答接口的请求体。TopK 为 0 时使用配置默认值。
type QueryRequest struct {
	Subject  string `json:"subject" binding:"required"`
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"topK"`
}

// Source 描述了回答所引用的一个文档块。
type Source struct {
	DocumentName string `json:"documentName"`
	ChunkIndex   int    `json:"chunkIndex"`
	ChunkText    string `json:"chunkText"`
}

// QueryResponse 是问答接口的响应体。
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// UploadResponse 是文档上传接口的响应体。
type UploadResponse struct {
	DocumentID   uint   `json:"documentId"`
	DocumentName string `json:"documentName"`
	Subject      string `json:"subject"`
	TotalChunks  int    `json:"totalChunks"`
}

// ChatMessage 代表存储在 Redis 问答历史中的单条消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
