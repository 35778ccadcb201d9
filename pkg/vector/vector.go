// Package vector 提供了文档向量的存储与检索网关，屏蔽底层后端差异。
package vector

import (
	"context"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/apperr"
)

// Payload 是随每个向量一同存储的结构化元数据。
type Payload struct {
	OwnerID      uint   `json:"owner_id"`
	Subject      string `json:"subject"`
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	ChunkIndex   int    `json:"chunk_index"`
	ChunkText    string `json:"chunk_text"`
}

// Validate 在写入边界校验元数据的完整性。
func (p *Payload) Validate() error {
	if p.OwnerID == 0 {
		return apperr.Validationf("payload owner id is required")
	}
	if p.Subject == "" {
		return apperr.Validationf("payload subject is required")
	}
	if p.DocumentID == "" {
		return apperr.Validationf("payload document id is required")
	}
	if p.DocumentName == "" {
		return apperr.Validationf("payload document name is required")
	}
	if p.ChunkIndex < 0 {
		return apperr.Validationf("payload chunk index must not be negative, got %d", p.ChunkIndex)
	}
	return nil
}

// Point 是待写入向量库的一条记录。ID 为空时由网关生成不透明标识。
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// ScoredPoint 是一次检索的单条命中，Score 越大相似度越高。
type ScoredPoint struct {
	Payload Payload
	Score   float64
}

// Store 定义了向量库网关。实现须保证：集合只在缺失时创建、从不重建；
// Search 始终施加 owner 与 subject 的合取过滤，不提供无过滤的检索路径。
type Store interface {
	// EnsureCollection 幂等地创建集合（含过滤字段声明），并发调用只执行一次；
	// 失败后允许后续调用重试。
	EnsureCollection(ctx context.Context) error
	// Upsert 批量写入向量点，partial 失败会作为 infrastructure 错误返回。
	Upsert(ctx context.Context, points []Point) error
	// Search 在 owner 与 subject 限定的范围内做 top-k 相似检索，按得分降序返回。
	Search(ctx context.Context, vector []float32, ownerID uint, subject string, topK int) ([]ScoredPoint, error)
}

// NewStore 根据配置构造向量库网关，dimensions 为向量维度。
func NewStore(cfg config.VectorConfig, dimensions int) (Store, error) {
	if dimensions <= 0 {
		return nil, apperr.Configf("vector dimensions must be positive, got %d", dimensions)
	}
	switch cfg.Driver {
	case "elasticsearch":
		return newElasticStore(cfg, dimensions)
	case "local":
		return newLocalStore(cfg, dimensions)
	default:
		return nil, apperr.Configf("unknown vector driver %q", cfg.Driver)
	}
}

// validatePoints 在网关边界校验每个点的元数据与向量维度。
func validatePoints(points []Point, dimensions int) error {
	for i := range points {
		if err := points[i].Payload.Validate(); err != nil {
			return err
		}
		if len(points[i].Vector) != dimensions {
			return apperr.Infraf("point %d has dimension %d, expected %d", i, len(points[i].Vector), dimensions)
		}
	}
	return nil
}

// validateScope 校验检索的租户范围参数，缺失即拒绝。
func validateScope(ownerID uint, subject string, topK int) error {
	if ownerID == 0 {
		return apperr.Validationf("owner id is required for scoped search")
	}
	if subject == "" {
		return apperr.Validationf("subject is required for scoped search")
	}
	if topK <= 0 {
		return apperr.Validationf("top k must be positive, got %d", topK)
	}
	return nil
}
