package service

import (
	"context"
	"fmt"
	"strings"

	"askmynotes-go/internal/config"
	"askmynotes-go/internal/model"
	"askmynotes-go/internal/repository"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/embedding"
	"askmynotes-go/pkg/llm"
	"askmynotes-go/pkg/log"
	"askmynotes-go/pkg/vector"
)

// NoResultsAnswer 是检索无命中时返回的固定回答，此时不调用生成模型。
const NoResultsAnswer = "No relevant information found for your question."

// defaultPromptRules 在配置未提供提示规则时使用。
const defaultPromptRules = "You are a study assistant. Answer the question using only the provided document context. If the context does not contain the answer, say so."

// QueryService 接口定义了问答管线的操作。
type QueryService interface {
	// Query 执行完整的问答管线：校验学科归属、向量化问题、作用域检索、
	// 组装上下文并调用生成模型。无命中时返回固定回答且不调用生成模型。
	Query(ctx context.Context, userID uint, req model.QueryRequest) (*model.QueryResponse, error)
	// RetrieveContext 执行作用域检索，返回来源列表与拼接好的上下文文本。
	RetrieveContext(ctx context.Context, userID uint, subject, question string, topK int) ([]model.Source, string, error)
	// History 返回用户在某学科下最近的问答历史。
	History(ctx context.Context, userID uint, subject string) ([]model.ChatMessage, error)
	// SaveExchange 将一轮问答写入历史，失败只记录日志。
	SaveExchange(ctx context.Context, userID uint, subject, question, answer string)
}

// queryService 是 QueryService 接口的实现。
type queryService struct {
	profileService ProfileService
	provider       embedding.Provider
	vectorStore    vector.Store
	llmClient      llm.Client
	historyRepo    repository.HistoryRepository
	queryCfg       config.QueryConfig
	promptRules    string
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(
	profileService ProfileService,
	provider embedding.Provider,
	vectorStore vector.Store,
	llmClient llm.Client,
	historyRepo repository.HistoryRepository,
	queryCfg config.QueryConfig,
	llmCfg config.LLMConfig,
) QueryService {
	rules := llmCfg.Prompt.Rules
	if rules == "" {
		rules = defaultPromptRules
	}
	return &queryService{
		profileService: profileService,
		provider:       provider,
		vectorStore:    vectorStore,
		llmClient:      llmClient,
		historyRepo:    historyRepo,
		queryCfg:       queryCfg,
		promptRules:    rules,
	}
}

// Query 执行问答管线。
func (s *queryService) Query(ctx context.Context, userID uint, req model.QueryRequest) (*model.QueryResponse, error) {
	log.Infof("[QueryService] 开始处理问答请求, userID: %d, subject: '%s'", userID, req.Subject)

	sources, contextText, err := s.RetrieveContext(ctx, userID, req.Subject, req.Question, req.TopK)
	if err != nil {
		return nil, err
	}

	// 无命中：返回固定回答，不调用生成模型
	if len(sources) == 0 {
		log.Infof("[QueryService] 检索无命中, userID: %d, subject: '%s'", userID, req.Subject)
		s.SaveExchange(ctx, userID, req.Subject, req.Question, NoResultsAnswer)
		return &model.QueryResponse{Answer: NoResultsAnswer, Sources: []model.Source{}}, nil
	}

	// 调用生成模型
	log.Infof("[QueryService] 调用生成模型, 上下文块数: %d", len(sources))
	messages := buildQAMessages(s.promptRules, contextText, req.Question)
	answer, err := s.llmClient.Chat(ctx, messages, nil)
	if err != nil {
		if apperr.KindOf(err) == 0 {
			err = apperr.WrapInfra("answer generation failed", err)
		}
		return nil, err
	}

	s.SaveExchange(ctx, userID, req.Subject, req.Question, answer)
	log.Infof("[QueryService] 问答完成, userID: %d, 来源数: %d", userID, len(sources))
	return &model.QueryResponse{Answer: answer, Sources: sources}, nil
}

// RetrieveContext 校验请求并执行作用域检索。
func (s *queryService) RetrieveContext(ctx context.Context, userID uint, subject, question string, topK int) ([]model.Source, string, error) {
	if userID == 0 {
		return nil, "", apperr.Validationf("owner id is required")
	}
	if strings.TrimSpace(question) == "" {
		return nil, "", apperr.Validationf("question must not be empty")
	}
	if err := s.profileService.ValidateSubject(userID, subject); err != nil {
		return nil, "", err
	}
	if topK <= 0 {
		topK = s.queryCfg.TopK
	}

	// 向量化问题
	vectors, err := s.provider.Embed(ctx, []string{question})
	if err != nil {
		return nil, "", err
	}

	// 作用域检索，owner 与 subject 的过滤由网关强制施加
	hits, err := s.vectorStore.Search(ctx, vectors[0], userID, subject, topK)
	if err != nil {
		return nil, "", err
	}

	sources := make([]model.Source, 0, len(hits))
	for _, hit := range hits {
		sources = append(sources, model.Source{
			DocumentName: hit.Payload.DocumentName,
			ChunkIndex:   hit.Payload.ChunkIndex,
			ChunkText:    hit.Payload.ChunkText,
		})
	}
	return sources, buildContextText(hits), nil
}

// History 返回用户在某学科下最近的问答历史。
func (s *queryService) History(ctx context.Context, userID uint, subject string) ([]model.ChatMessage, error) {
	if userID == 0 {
		return nil, apperr.Validationf("owner id is required")
	}
	if err := s.profileService.ValidateSubject(userID, subject); err != nil {
		return nil, err
	}
	messages, err := s.historyRepo.GetHistory(ctx, userID, subject)
	if err != nil {
		return nil, apperr.WrapInfra("failed to load qa history", err)
	}
	return messages, nil
}

// SaveExchange 将一轮问答写入历史，失败只记录日志不影响响应。
func (s *queryService) SaveExchange(ctx context.Context, userID uint, subject, question, answer string) {
	if err := s.historyRepo.AppendExchange(ctx, userID, subject, question, answer); err != nil {
		log.Errorf("[QueryService] 保存问答历史失败, userID: %d, error: %v", userID, err)
	}
}

// buildContextText 将命中的块按返回顺序拼接为上下文文本。
// 每个块的格式为 "Document: <名称>\nChunk <序号>:\n<内容>"，块之间以空行分隔。
func buildContextText(hits []vector.ScoredPoint) string {
	if len(hits) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(hits))
	for _, hit := range hits {
		blocks = append(blocks, fmt.Sprintf("Document: %s\nChunk %d:\n%s",
			hit.Payload.DocumentName, hit.Payload.ChunkIndex, hit.Payload.ChunkText))
	}
	return strings.Join(blocks, "\n\n")
}

// buildQAMessages 组装传给生成模型的消息：system 携带规则与上下文，user 携带问题。
func buildQAMessages(rules, contextText, question string) []llm.Message {
	var sys strings.Builder
	sys.WriteString(rules)
	sys.WriteString("\n\nContext:\n")
	sys.WriteString(contextText)
	return []llm.Message{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: question},
	}
}
