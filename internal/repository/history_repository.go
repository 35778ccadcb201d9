package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"askmynotes-go/internal/model"
)

// historyLimit 为每个 user+subject 保留的最近消息条数。
const historyLimit = 20

// historyTTL 为问答历史在 Redis 中的存活时间。
const historyTTL = 7 * 24 * time.Hour

// HistoryRepository 定义了问答历史记录的操作接口，按 user+subject 分桶存储。
type HistoryRepository interface {
	GetHistory(ctx context.Context, userID uint, subject string) ([]model.ChatMessage, error)
	AppendExchange(ctx context.Context, userID uint, subject, question, answer string) error
}

type redisHistoryRepository struct {
	redisClient *redis.Client
}

// NewHistoryRepository 创建一个新的 HistoryRepository 实例。
func NewHistoryRepository(redisClient *redis.Client) HistoryRepository {
	return &redisHistoryRepository{redisClient: redisClient}
}

func historyKey(userID uint, subject string) string {
	return fmt.Sprintf("qa:history:%d:%s", userID, subject)
}

// GetHistory 从 Redis 获取用户在某学科下的问答历史。
func (r *redisHistoryRepository) GetHistory(ctx context.Context, userID uint, subject string) ([]model.ChatMessage, error) {
	jsonData, err := r.redisClient.Get(ctx, historyKey(userID, subject)).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get qa history: %w", err)
	}

	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal qa history: %w", err)
	}
	return messages, nil
}

// appendTrimmed 把一轮问答追加到消息列表末尾，只保留最近 historyLimit 条。
func appendTrimmed(messages []model.ChatMessage, question, answer string, now time.Time) []model.ChatMessage {
	messages = append(messages,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	return messages
}

// AppendExchange 追加一轮问答并保留最近 historyLimit 条消息。
func (r *redisHistoryRepository) AppendExchange(ctx context.Context, userID uint, subject, question, answer string) error {
	messages, err := r.GetHistory(ctx, userID, subject)
	if err != nil {
		return err
	}
	messages = appendTrimmed(messages, question, answer, time.Now())

	jsonData, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal qa history: %w", err)
	}
	if err := r.redisClient.Set(ctx, historyKey(userID, subject), jsonData, historyTTL).Err(); err != nil {
		return fmt.Errorf("failed to set qa history: %w", err)
	}
	return nil
}
