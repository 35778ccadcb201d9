package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"askmynotes-go/internal/config"
	"askmynotes-go/internal/model"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/llm"
	"askmynotes-go/pkg/log"
)

// ChatService 定义了流式问答操作的接口。
type ChatService interface {
	// StreamAnswer 执行与 QueryService.Query 相同的管线，但通过 websocket
	// 以 {"chunk":"..."} 分块流式下发回答，结束后发送完成通知。
	StreamAnswer(ctx context.Context, userID uint, req model.QueryRequest, ws *websocket.Conn, shouldStop func() bool) error
}

// chatService 是 ChatService 接口的实现。
type chatService struct {
	queryService QueryService
	llmClient    llm.Client
	promptRules  string
}

// NewChatService 创建一个新的 ChatService 实例。
func NewChatService(queryService QueryService, llmClient llm.Client, llmCfg config.LLMConfig) ChatService {
	rules := llmCfg.Prompt.Rules
	if rules == "" {
		rules = defaultPromptRules
	}
	return &chatService{
		queryService: queryService,
		llmClient:    llmClient,
		promptRules:  rules,
	}
}

// StreamAnswer 协调检索与流式生成。
func (s *chatService) StreamAnswer(ctx context.Context, userID uint, req model.QueryRequest, ws *websocket.Conn, shouldStop func() bool) error {
	sources, contextText, err := s.queryService.RetrieveContext(ctx, userID, req.Subject, req.Question, req.TopK)
	if err != nil {
		return err
	}

	// 无命中：下发固定回答，不调用生成模型
	if len(sources) == 0 {
		interceptor := &wsWriterInterceptor{conn: ws, builder: &strings.Builder{}, shouldStop: shouldStop}
		if err := interceptor.WriteMessage(websocket.TextMessage, []byte(NoResultsAnswer)); err != nil {
			return err
		}
		sendCompletion(ws)
		s.queryService.SaveExchange(context.Background(), userID, req.Subject, req.Question, NoResultsAnswer)
		return nil
	}

	// 拦截 websocket writer 以捕获完整答案
	answerBuilder := &strings.Builder{}
	interceptor := &wsWriterInterceptor{conn: ws, builder: answerBuilder, shouldStop: shouldStop}

	messages := buildQAMessages(s.promptRules, contextText, req.Question)
	if err := s.llmClient.StreamChatMessages(ctx, messages, nil, interceptor); err != nil {
		if apperr.KindOf(err) == 0 {
			err = apperr.WrapInfra("answer generation failed", err)
		}
		return err
	}

	// 发送完成通知并保存历史。保存使用后台上下文，
	// 即使请求被取消也保留已生成的答案。
	sendCompletion(ws)
	if fullAnswer := answerBuilder.String(); fullAnswer != "" {
		s.queryService.SaveExchange(context.Background(), userID, req.Subject, req.Question, fullAnswer)
	}
	return nil
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，捕获写入的内容并包装为 JSON 分块。
type wsWriterInterceptor struct {
	conn       *websocket.Conn
	builder    *strings.Builder
	shouldStop func() bool
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	if w.shouldStop != nil && w.shouldStop() {
		// 停止标志生效：跳过下发
		return nil
	}
	w.builder.Write(data)
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON。
func sendCompletion(ws *websocket.Conn) {
	notif := map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	b, _ := json.Marshal(notif)
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("[ChatService] 发送完成通知失败: %v", err)
	}
}
