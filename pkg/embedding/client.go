// Package embedding provides clients for generating text embeddings.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/log"
)

// Provider defines the interface for an embedding provider. Embed returns one
// vector per input text, in input order, each of exactly Dimension() entries.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// NewProvider creates an embedding provider based on the provider in the config.
func NewProvider(cfg config.EmbeddingConfig) (Provider, error) {
	if cfg.Dimensions <= 0 {
		return nil, apperr.Configf("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}
	switch cfg.Provider {
	case "openai":
		return &openAICompatibleProvider{
			cfg:    cfg,
			client: &http.Client{Timeout: 60 * time.Second},
		}, nil
	case "mock":
		return &mockProvider{dimensions: cfg.Dimensions}, nil
	default:
		return nil, apperr.Configf("unknown embedding provider %q", cfg.Provider)
	}
}

// normalizeInput 将空文本与纯空白文本替换为单个空格，避免上游接口拒绝空输入。
func normalizeInput(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			out[i] = " "
		} else {
			out[i] = t
		}
	}
	return out
}

type openAICompatibleProvider struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *openAICompatibleProvider) Dimension() int {
	return p.cfg.Dimensions
}

// Embed calls the OpenAI-compatible API in batches and validates every
// returned vector against the configured dimension.
func (p *openAICompatibleProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := normalizeInput(texts)

	batchSize := p.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}

	vectors := make([][]float32, 0, len(inputs))
	for start := 0; start < len(inputs); start += batchSize {
		end := start + batchSize
		if end > len(inputs) {
			end = len(inputs)
		}
		batch, err := p.embedBatch(ctx, inputs[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	log.Infof("[EmbeddingProvider] 成功生成 %d 个向量, model: %s, 维度: %d", len(vectors), p.cfg.Model, p.cfg.Dimensions)
	return vectors, nil
}

func (p *openAICompatibleProvider) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	reqBody := embeddingRequest{
		Model:      p.cfg.Model,
		Input:      batch,
		Dimensions: p.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingProvider] 调用 Embedding API 失败, error: %v", err)
		return nil, apperr.WrapInfra("failed to call embedding api", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingProvider] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, apperr.Infraf("embedding api returned non-200 status: %s", resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingProvider] 解析 Embedding API 响应失败, error: %v", err)
		return nil, apperr.WrapInfra("failed to decode embedding response", err)
	}

	if len(embeddingResp.Data) != len(batch) {
		return nil, apperr.Infraf("embedding api returned %d vectors for %d inputs", len(embeddingResp.Data), len(batch))
	}

	vectors := make([][]float32, len(embeddingResp.Data))
	for i, d := range embeddingResp.Data {
		if len(d.Embedding) != p.cfg.Dimensions {
			return nil, apperr.Infraf("embedding dimension mismatch: expected %d, got %d", p.cfg.Dimensions, len(d.Embedding))
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// mockProvider 以文本哈希确定性地生成向量，供离线运行与测试使用。
type mockProvider struct {
	dimensions int
}

func (p *mockProvider) Dimension() int {
	return p.dimensions
}

func (p *mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inputs := normalizeInput(texts)
	vectors := make([][]float32, len(inputs))
	for i, text := range inputs {
		h := fnv.New64a()
		_, _ = h.Write([]byte(text))
		sum := h.Sum64()

		vec := make([]float32, p.dimensions)
		for j := 0; j < p.dimensions; j++ {
			vec[j] = float32((sum>>(uint(j)%64))%100) / 100.0
		}
		vectors[i] = vec
	}
	return vectors, nil
}
