package vector

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/log"
)

// localStore 基于内嵌的 chromem 实现 Store，无需外部服务，
// 供本地运行与测试使用。path 为空时数据仅驻留内存。
type localStore struct {
	db         *chromem.DB
	name       string
	dimensions int

	mu  sync.Mutex
	col *chromem.Collection
}

func newLocalStore(cfg config.VectorConfig, dimensions int) (*localStore, error) {
	var db *chromem.DB
	if cfg.Local.Path != "" {
		d, err := chromem.NewPersistentDB(cfg.Local.Path, false)
		if err != nil {
			return nil, apperr.WrapConfig("failed to open local vector db", err)
		}
		db = d
	} else {
		db = chromem.NewDB()
	}
	return &localStore{
		db:         db,
		name:       cfg.Collection,
		dimensions: dimensions,
	}, nil
}

// EnsureCollection 获取或创建集合，并发首调用只执行一次。
func (s *localStore) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLocked(ctx)
}

func (s *localStore) ensureLocked(ctx context.Context) error {
	if s.col != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	col, err := s.db.GetOrCreateCollection(s.name, nil, nil)
	if err != nil {
		return apperr.WrapInfra("failed to create local collection", err)
	}
	s.col = col
	log.Infof("[VectorStore] 本地集合 '%s' 就绪", s.name)
	return nil
}

func (s *localStore) collection(ctx context.Context) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return s.col, nil
}

// Upsert 将向量点逐条写入集合，元数据以字符串形式存储以支持精确过滤。
func (s *localStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points, s.dimensions); err != nil {
		return err
	}
	col, err := s.collection(ctx)
	if err != nil {
		return err
	}

	for _, p := range points {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		doc := chromem.Document{
			ID: id,
			Metadata: map[string]string{
				"owner_id":      strconv.FormatUint(uint64(p.Payload.OwnerID), 10),
				"subject":       p.Payload.Subject,
				"document_id":   p.Payload.DocumentID,
				"document_name": p.Payload.DocumentName,
				"chunk_index":   strconv.Itoa(p.Payload.ChunkIndex),
			},
			Embedding: p.Vector,
			Content:   p.Payload.ChunkText,
		}
		if err := col.AddDocument(ctx, doc); err != nil {
			return apperr.WrapInfra("failed to add document to local collection", err)
		}
	}
	log.Infof("[VectorStore] 已写入 %d 个向量到本地集合 '%s'", len(points), s.name)
	return nil
}

// Search 以元数据 where 过滤实现 owner 与 subject 的合取限定。
func (s *localStore) Search(ctx context.Context, vector []float32, ownerID uint, subject string, topK int) ([]ScoredPoint, error) {
	if err := validateScope(ownerID, subject, topK); err != nil {
		return nil, err
	}
	if len(vector) != s.dimensions {
		return nil, apperr.Infraf("query vector has dimension %d, expected %d", len(vector), s.dimensions)
	}
	col, err := s.collection(ctx)
	if err != nil {
		return nil, err
	}

	k := topK
	if count := col.Count(); count == 0 {
		return nil, nil
	} else if k > count {
		k = count
	}

	where := map[string]string{
		"owner_id": strconv.FormatUint(uint64(ownerID), 10),
		"subject":  subject,
	}
	results, err := col.QueryEmbedding(ctx, vector, k, where, nil)
	if err != nil {
		return nil, apperr.WrapInfra("local vector query failed", err)
	}

	points := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		owner, _ := strconv.ParseUint(r.Metadata["owner_id"], 10, 64)
		chunkIndex, _ := strconv.Atoi(r.Metadata["chunk_index"])
		points = append(points, ScoredPoint{
			Payload: Payload{
				OwnerID:      uint(owner),
				Subject:      r.Metadata["subject"],
				DocumentID:   r.Metadata["document_id"],
				DocumentName: r.Metadata["document_name"],
				ChunkIndex:   chunkIndex,
				ChunkText:    r.Content,
			},
			Score: float64(r.Similarity),
		})
	}
	log.Infof("[VectorStore] 本地检索完成, owner: %d, subject: '%s', 命中 %d 条", ownerID, subject, len(points))
	return points, nil
}
