package vector

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/log"
)

// elasticStore 基于 Elasticsearch dense_vector 实现 Store。
type elasticStore struct {
	client     *elasticsearch.Client
	index      string
	dimensions int

	mu          sync.Mutex
	provisioned bool
}

func newElasticStore(cfg config.VectorConfig, dimensions int) (*elasticStore, error) {
	esCfg := elasticsearch.Config{
		Addresses: strings.Split(cfg.Elasticsearch.Addresses, ","),
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, apperr.WrapConfig("failed to create elasticsearch client", err)
	}
	return &elasticStore{
		client:     client,
		index:      cfg.Collection,
		dimensions: dimensions,
	}, nil
}

// esDocument 是索引中的单条文档结构。
type esDocument struct {
	OwnerID      uint      `json:"owner_id"`
	Subject      string    `json:"subject"`
	DocumentID   string    `json:"document_id"`
	DocumentName string    `json:"document_name"`
	ChunkIndex   int       `json:"chunk_index"`
	ChunkText    string    `json:"chunk_text"`
	Vector       []float32 `json:"vector"`
}

func (d esDocument) payload() Payload {
	return Payload{
		OwnerID:      d.OwnerID,
		Subject:      d.Subject,
		DocumentID:   d.DocumentID,
		DocumentName: d.DocumentName,
		ChunkIndex:   d.ChunkIndex,
		ChunkText:    d.ChunkText,
	}
}

// EnsureCollection 幂等地创建索引。加锁保证并发首调用只发起一次创建，
// 成功后进程内不再重复检查，失败则留给下一次调用重试。
func (s *elasticStore) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provisioned {
		return nil
	}
	if err := s.createIndexIfNotExists(ctx); err != nil {
		return err
	}
	s.provisioned = true
	return nil
}

// createIndexIfNotExists 检查索引是否存在，不存在则按固定 mapping 创建，从不删除重建。
func (s *elasticStore) createIndexIfNotExists(ctx context.Context) error {
	res, err := s.client.Indices.Exists(
		[]string{s.index},
		s.client.Indices.Exists.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("[VectorStore] 检查索引是否存在时出错: %v", err)
		return apperr.WrapInfra("elasticsearch unreachable", err)
	}
	defer res.Body.Close()

	// 200 说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[VectorStore] 索引 '%s' 已存在", s.index)
		return nil
	}
	// 404 说明索引不存在，需要创建
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("[VectorStore] 检查索引 '%s' 时收到意外的状态码: %d", s.index, res.StatusCode)
		return apperr.Infraf("unexpected status %d while checking index existence", res.StatusCode)
	}

	// owner_id 与 subject 为过滤字段，向量使用 cosine 相似度
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"owner_id":      { "type": "long" },
				"subject":       { "type": "keyword" },
				"document_id":   { "type": "keyword" },
				"document_name": { "type": "keyword" },
				"chunk_index":   { "type": "integer" },
				"chunk_text":    { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, s.dimensions)

	createRes, err := s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("[VectorStore] 创建索引 '%s' 失败: %v", s.index, err)
		return apperr.WrapInfra("failed to create index", err)
	}
	defer createRes.Body.Close()

	if createRes.IsError() {
		log.Errorf("[VectorStore] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.index, createRes.String())
		return apperr.Infraf("elasticsearch returned an error while creating index: %s", createRes.Status())
	}

	log.Infof("[VectorStore] 索引 '%s' 创建成功, 向量维度: %d", s.index, s.dimensions)
	return nil
}

// Upsert 以 bulk 请求分批写入，每批 100 条。
func (s *elasticStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points, s.dimensions); err != nil {
		return err
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return err
	}

	const batchSize = 100
	for start := 0; start < len(points); start += batchSize {
		end := start + batchSize
		if end > len(points) {
			end = len(points)
		}
		if err := s.bulkIndex(ctx, points[start:end]); err != nil {
			return err
		}
	}

	log.Infof("[VectorStore] 已写入 %d 个向量到索引 '%s'", len(points), s.index)
	return nil
}

func (s *elasticStore) bulkIndex(ctx context.Context, batch []Point) error {
	var buf bytes.Buffer
	for _, p := range batch {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		meta, err := json.Marshal(map[string]interface{}{
			"index": map[string]interface{}{"_index": s.index, "_id": id},
		})
		if err != nil {
			return fmt.Errorf("failed to marshal bulk action: %w", err)
		}
		doc, err := json.Marshal(esDocument{
			OwnerID:      p.Payload.OwnerID,
			Subject:      p.Payload.Subject,
			DocumentID:   p.Payload.DocumentID,
			DocumentName: p.Payload.DocumentName,
			ChunkIndex:   p.Payload.ChunkIndex,
			ChunkText:    p.Payload.ChunkText,
			Vector:       p.Vector,
		})
		if err != nil {
			return fmt.Errorf("failed to marshal document: %w", err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	res, err := s.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		s.client.Bulk.WithContext(ctx),
		s.client.Bulk.WithIndex(s.index),
		s.client.Bulk.WithRefresh("true"),
	)
	if err != nil {
		log.Errorf("[VectorStore] bulk 写入请求失败: %v", err)
		return apperr.WrapInfra("elasticsearch bulk request failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[VectorStore] bulk 写入返回错误: %s", res.String())
		return apperr.Infraf("elasticsearch bulk returned an error: %s", res.Status())
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return apperr.WrapInfra("failed to decode bulk response", err)
	}
	if bulkResp.Errors {
		failed := 0
		for _, item := range bulkResp.Items {
			for _, op := range item {
				if op.Status >= 300 {
					failed++
				}
			}
		}
		log.Errorf("[VectorStore] bulk 写入部分失败: %d/%d", failed, len(batch))
		return apperr.Infraf("bulk indexing failed for %d of %d points", failed, len(batch))
	}
	return nil
}

// Search 执行 kNN 检索，owner 与 subject 的合取过滤内嵌在 knn 子句中，
// 过滤在近邻搜索阶段生效而不是事后截断。
func (s *elasticStore) Search(ctx context.Context, vector []float32, ownerID uint, subject string, topK int) ([]ScoredPoint, error) {
	if err := validateScope(ownerID, subject, topK); err != nil {
		return nil, err
	}
	if len(vector) != s.dimensions {
		return nil, apperr.Infraf("query vector has dimension %d, expected %d", len(vector), s.dimensions)
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return nil, err
	}

	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": topK * 10,
			"filter": map[string]interface{}{
				"bool": map[string]interface{}{
					"must": []map[string]interface{}{
						{"term": map[string]interface{}{"owner_id": ownerID}},
						{"term": map[string]interface{}{"subject": subject}},
					},
				},
			},
		},
		"size":    topK,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithBody(&buf),
		s.client.Search.WithTrackTotalHits(true),
	)
	if err != nil {
		log.Errorf("[VectorStore] 向 Elasticsearch 发送检索请求失败: %v", err)
		return nil, apperr.WrapInfra("elasticsearch search failed", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[VectorStore] Elasticsearch 检索返回错误: %s", res.String())
		return nil, apperr.Infraf("elasticsearch returned an error: %s", res.Status())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source esDocument `json:"_source"`
				Score  float64    `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, apperr.WrapInfra("failed to decode es response", err)
	}

	results := make([]ScoredPoint, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		results = append(results, ScoredPoint{
			Payload: hit.Source.payload(),
			Score:   hit.Score,
		})
	}
	log.Infof("[VectorStore] 检索完成, owner: %d, subject: '%s', 命中 %d 条", ownerID, subject, len(results))
	return results, nil
}
