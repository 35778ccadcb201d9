package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmynotes-go/internal/config"
	"askmynotes-go/internal/model"
	"askmynotes-go/pkg/apperr"
)

// wsFrame 是流式问答下发的一帧：要么是分块，要么是完成通知。
type wsFrame struct {
	Chunk  string `json:"chunk"`
	Type   string `json:"type"`
	Status string `json:"status"`
}

// runStream 在真实的 websocket 连接上执行一次 StreamAnswer，
// 返回客户端收到的全部帧与服务端返回的错误。
func runStream(t *testing.T, svc ChatService, userID uint, req model.QueryRequest, shouldStop func() bool) ([]wsFrame, error) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	errCh := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errCh <- err
			return
		}
		defer conn.Close()
		errCh <- svc.StreamAnswer(r.Context(), userID, req, conn, shouldStop)
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	var frames []wsFrame
	for {
		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := client.ReadMessage()
		if err != nil {
			break
		}
		var frame wsFrame
		require.NoError(t, json.Unmarshal(data, &frame))
		frames = append(frames, frame)
		if frame.Type == "completion" {
			break
		}
	}

	select {
	case err := <-errCh:
		return frames, err
	case <-time.After(2 * time.Second):
		t.Fatal("StreamAnswer did not return")
		return nil, nil
	}
}

func TestStreamAnswer(t *testing.T) {
	f := newQueryFixture(t)
	f.llm.stream = []string{"矩阵的秩", "等于极大线性无关组", "所含向量的个数。"}
	chatSvc := NewChatService(f.svc, f.llm, config.LLMConfig{})

	frames, err := runStream(t, chatSvc, 1,
		model.QueryRequest{Subject: "Math", Question: "什么是矩阵的秩"}, nil)
	require.NoError(t, err)

	// 分块按顺序下发，最后一帧是完成通知
	require.Len(t, frames, 4)
	assert.Equal(t, "矩阵的秩", frames[0].Chunk)
	assert.Equal(t, "等于极大线性无关组", frames[1].Chunk)
	assert.Equal(t, "所含向量的个数。", frames[2].Chunk)
	assert.Equal(t, "completion", frames[3].Type)
	assert.Equal(t, "finished", frames[3].Status)

	// 完整答案已写入历史
	messages, err := f.history.GetHistory(context.Background(), 1, "Math")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "矩阵的秩等于极大线性无关组所含向量的个数。", messages[1].Content)
}

func TestStreamAnswerNoHits(t *testing.T) {
	f := newQueryFixture(t)
	chatSvc := NewChatService(f.svc, f.llm, config.LLMConfig{})

	frames, err := runStream(t, chatSvc, 1,
		model.QueryRequest{Subject: "Chemistry", Question: "什么是摩尔质量"}, nil)
	require.NoError(t, err)

	// 固定回答作为单个分块下发，生成模型未被调用
	require.Len(t, frames, 2)
	assert.Equal(t, NoResultsAnswer, frames[0].Chunk)
	assert.Equal(t, "completion", frames[1].Type)
	assert.Zero(t, f.llm.calls)
}

func TestStreamAnswerStopSkipsChunks(t *testing.T) {
	f := newQueryFixture(t)
	f.llm.stream = []string{"矩阵", "的秩"}
	chatSvc := NewChatService(f.svc, f.llm, config.LLMConfig{})

	frames, err := runStream(t, chatSvc, 1,
		model.QueryRequest{Subject: "Math", Question: "什么是矩阵的秩"},
		func() bool { return true })
	require.NoError(t, err)

	// 停止后分块被跳过，但完成通知仍然送达
	require.Len(t, frames, 1)
	assert.Equal(t, "completion", frames[0].Type)

	// 没有完整答案时不写入历史
	messages, err := f.history.GetHistory(context.Background(), 1, "Math")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestStreamAnswerValidationError(t *testing.T) {
	f := newQueryFixture(t)
	chatSvc := NewChatService(f.svc, f.llm, config.LLMConfig{})

	frames, err := runStream(t, chatSvc, 1,
		model.QueryRequest{Subject: "Biology", Question: "q"}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, frames)
	assert.Zero(t, f.llm.calls)
}

func TestStreamAnswerGeneratorFailure(t *testing.T) {
	f := newQueryFixture(t)
	f.llm.err = apperr.Infraf("model overloaded")
	chatSvc := NewChatService(f.svc, f.llm, config.LLMConfig{})

	_, err := runStream(t, chatSvc, 1,
		model.QueryRequest{Subject: "Math", Question: "q"}, nil)
	require.Error(t, err)
	assert.True(t, apperr.IsInfrastructure(err))

	messages, err := f.history.GetHistory(context.Background(), 1, "Math")
	require.NoError(t, err)
	assert.Empty(t, messages)
}
