package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmynotes-go/internal/config"
	"askmynotes-go/pkg/apperr"
)

type recordingWriter struct {
	chunks []string
}

func (w *recordingWriter) WriteMessage(messageType int, data []byte) error {
	w.chunks = append(w.chunks, string(data))
	return nil
}

func TestChat(t *testing.T) {
	var gotReq struct {
		Model       string    `json:"model"`
		Messages    []Message `json:"messages"`
		Stream      bool      `json:"stream"`
		Temperature *float64  `json:"temperature"`
		MaxTokens   *int      `json:"max_tokens"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq)) {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"矩阵的秩是..."}}]}`)
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "deepseek-chat",
		Generation: config.LLMGenerationConfig{
			Temperature: 0.3,
			MaxTokens:   512,
		},
	})

	answer, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "rules"},
		{Role: "user", Content: "什么是矩阵的秩"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "矩阵的秩是...", answer)

	// 非流式请求携带配置中的生成参数
	assert.Equal(t, "deepseek-chat", gotReq.Model)
	assert.False(t, gotReq.Stream)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	require.NotNil(t, gotReq.Temperature)
	assert.InDelta(t, 0.3, *gotReq.Temperature, 1e-9)
	require.NotNil(t, gotReq.MaxTokens)
	assert.Equal(t, 512, *gotReq.MaxTokens)
}

func TestChatExplicitParamsWin(t *testing.T) {
	var gotTemperature *float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Temperature *float64 `json:"temperature"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotTemperature = req.Temperature
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{
		BaseURL:    srv.URL,
		Generation: config.LLMGenerationConfig{Temperature: 0.3},
	})

	temp := 0.9
	_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}},
		&GenerationParams{Temperature: &temp})
	require.NoError(t, err)
	require.NotNil(t, gotTemperature)
	assert.InDelta(t, 0.9, *gotTemperature, 1e-9)
}

func TestChatErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusPaymentRequired)
		}))
		defer srv.Close()

		client := NewClient(config.LLMConfig{BaseURL: srv.URL})
		_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
		require.Error(t, err)
		assert.True(t, apperr.IsInfrastructure(err))
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("empty choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"choices":[]}`)
		}))
		defer srv.Close()

		client := NewClient(config.LLMConfig{BaseURL: srv.URL})
		_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
		require.Error(t, err)
		assert.True(t, apperr.IsInfrastructure(err))
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		client := NewClient(config.LLMConfig{BaseURL: srv.URL})
		_, err := client.Chat(context.Background(), []Message{{Role: "user", Content: "q"}}, nil)
		require.Error(t, err)
		assert.True(t, apperr.IsInfrastructure(err))
	})
}

func TestStreamChatMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"矩阵\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"的秩\"}}]}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"是...\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{BaseURL: srv.URL})
	writer := &recordingWriter{}
	err := client.StreamChatMessages(context.Background(),
		[]Message{{Role: "user", Content: "什么是矩阵的秩"}}, nil, writer)
	require.NoError(t, err)

	// 非 data 行与无法解析的行被跳过，分块按顺序写出
	assert.Equal(t, []string{"矩阵", "的秩", "是..."}, writer.chunks)
}

func TestStreamChatMessagesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(config.LLMConfig{BaseURL: srv.URL})
	writer := &recordingWriter{}
	err := client.StreamChatMessages(context.Background(),
		[]Message{{Role: "user", Content: "q"}}, nil, writer)
	require.Error(t, err)
	assert.True(t, apperr.IsInfrastructure(err))
	assert.Empty(t, writer.chunks)
}
