// Package kafka 提供了文档生命周期事件的发布功能。
package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/log"
)

// DocumentIngestedEvent 在一次文档摄取完成后发布。
type DocumentIngestedEvent struct {
	OwnerID      uint      `json:"owner_id"`
	Subject      string    `json:"subject"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	TotalChunks  int       `json:"total_chunks"`
	IngestedAt   time.Time `json:"ingested_at"`
}

// Producer 封装了 Kafka 事件写入。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。brokers 为空时返回 nil，表示事件发布被禁用。
func NewProducer(cfg config.KafkaConfig) *Producer {
	if cfg.Brokers == "" {
		log.Info("Kafka 未配置，文档事件发布已禁用")
		return nil
	}
	writer := &kafka.Writer{
		Addr:     kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}
	log.Infof("Kafka 生产者初始化成功, topic: '%s'", cfg.Topic)
	return &Producer{writer: writer}
}

// PublishDocumentIngested 发送一条文档摄取完成事件。
func (p *Producer) PublishDocumentIngested(ctx context.Context, event DocumentIngestedEvent) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.DocumentID),
		Value: eventBytes,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
