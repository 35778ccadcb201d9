package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askmynotes-go/internal/model"
	"askmynotes-go/internal/service"
	"askmynotes-go/pkg/apperr"
	"askmynotes-go/pkg/token"
)

var (
	_ service.ChatService = (*fakeChatService)(nil)
	_ service.UserService = (*fakeUserService)(nil)
)

type fakeUserService struct {
	user *model.User
}

func (s *fakeUserService) Register(name, email, password string) (*model.User, error) {
	return nil, apperr.Validationf("not implemented")
}

func (s *fakeUserService) Login(email, password string) (string, string, error) {
	return "", "", apperr.Validationf("not implemented")
}

func (s *fakeUserService) RefreshToken(refreshTokenString string) (string, string, error) {
	return "", "", apperr.Validationf("not implemented")
}

func (s *fakeUserService) Logout(ctx context.Context, tokenString string) error { return nil }

func (s *fakeUserService) IsTokenBlacklisted(ctx context.Context, tokenString string) bool {
	return false
}

func (s *fakeUserService) GetByID(userID uint) (*model.User, error) {
	if s.user == nil || s.user.ID != userID {
		return nil, apperr.Validationf("user not found")
	}
	return s.user, nil
}

// fakeChatService 直接向连接写入一帧分块与完成通知。
type fakeChatService struct {
	err         error
	calls       int
	lastUser    uint
	lastReq     model.QueryRequest
	stopAtStart bool
}

func (s *fakeChatService) StreamAnswer(ctx context.Context, userID uint, req model.QueryRequest, ws *websocket.Conn, shouldStop func() bool) error {
	s.calls++
	s.lastUser = userID
	s.lastReq = req
	s.stopAtStart = shouldStop()
	if s.err != nil {
		return s.err
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"chunk":"矩阵的秩"}`)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"completion","status":"finished"}`))
}

type chatFixture struct {
	handler *ChatHandler
	chatSvc *fakeChatService
	jwt     *token.JWTManager
	srv     *httptest.Server
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwtManager := token.NewJWTManager("test-secret", 1, 7)
	chatSvc := &fakeChatService{}
	h := NewChatHandler(chatSvc, &fakeUserService{
		user: &model.User{ID: 7, Name: "Alice", Email: "alice@example.com"},
	}, jwtManager)

	r := gin.New()
	r.GET("/qa/stream/:token", h.Handle)
	r.GET("/api/v1/qa/stream-token", h.GetWebsocketStopToken)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &chatFixture{handler: h, chatSvc: chatSvc, jwt: jwtManager, srv: srv}
}

func (f *chatFixture) dial(t *testing.T, tokenString string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/qa/stream/" + tokenString
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestChatHandleAuth(t *testing.T) {
	f := newChatFixture(t)

	t.Run("invalid token rejected before upgrade", func(t *testing.T) {
		resp, err := http.Get(f.srv.URL + "/qa/stream/not-a-jwt")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("unknown user rejected", func(t *testing.T) {
		orphan, err := f.jwt.GenerateToken(99, "ghost@example.com")
		require.NoError(t, err)

		resp, err := http.Get(f.srv.URL + "/qa/stream/" + orphan)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestChatHandleStreamsAnswer(t *testing.T) {
	f := newChatFixture(t)
	tokenString, err := f.jwt.GenerateToken(7, "alice@example.com")
	require.NoError(t, err)

	conn := f.dial(t, tokenString)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"subject": "Math", "question": "什么是矩阵的秩", "topK": 3,
	}))

	chunk := readFrame(t, conn)
	assert.Equal(t, "矩阵的秩", chunk["chunk"])
	completion := readFrame(t, conn)
	assert.Equal(t, "completion", completion["type"])

	assert.Equal(t, uint(7), f.chatSvc.lastUser)
	assert.Equal(t, "Math", f.chatSvc.lastReq.Subject)
	assert.Equal(t, 3, f.chatSvc.lastReq.TopK)
	assert.False(t, f.chatSvc.stopAtStart)
}

func TestChatHandleMalformedMessage(t *testing.T) {
	f := newChatFixture(t)
	tokenString, err := f.jwt.GenerateToken(7, "alice@example.com")
	require.NoError(t, err)

	conn := f.dial(t, tokenString)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])

	// 连接仍可复用
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"subject": "Math", "question": "q"}))
	chunk := readFrame(t, conn)
	assert.Equal(t, "矩阵的秩", chunk["chunk"])
}

func TestChatHandleValidationErrorKeepsConnection(t *testing.T) {
	f := newChatFixture(t)
	f.chatSvc.err = apperr.Validationf("subject 'Biology' is not associated with the user")
	tokenString, err := f.jwt.GenerateToken(7, "alice@example.com")
	require.NoError(t, err)

	conn := f.dial(t, tokenString)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"subject": "Biology", "question": "q"}))

	// 校验错误原样透出
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Contains(t, frame["error"], "Biology")

	// 纠正后同一连接继续工作
	f.chatSvc.err = nil
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"subject": "Math", "question": "q"}))
	chunk := readFrame(t, conn)
	assert.Equal(t, "矩阵的秩", chunk["chunk"])
}

func TestChatHandleInfrastructureErrorClosesConnection(t *testing.T) {
	f := newChatFixture(t)
	f.chatSvc.err = apperr.Infraf("vector store unreachable")
	tokenString, err := f.jwt.GenerateToken(7, "alice@example.com")
	require.NoError(t, err)

	conn := f.dial(t, tokenString)
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"subject": "Math", "question": "q"}))

	// 基础设施错误不泄露内部细节
	frame := readFrame(t, conn)
	assert.Equal(t, "error", frame["type"])
	assert.Equal(t, "AI服务暂时不可用，请稍后重试", frame["error"])

	// 服务端随后关闭连接
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestChatHandleStopCommand(t *testing.T) {
	f := newChatFixture(t)

	// 先通过 HTTP 接口取得停止令牌
	resp, err := http.Get(f.srv.URL + "/api/v1/qa/stream-token")
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	var data struct {
		CmdToken string `json:"cmdToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.True(t, strings.HasPrefix(data.CmdToken, "WSS_STOP_CMD_"))

	tokenString, err := f.jwt.GenerateToken(7, "alice@example.com")
	require.NoError(t, err)
	conn := f.dial(t, tokenString)

	t.Run("valid stop command acknowledged", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type": "stop", "_internal_cmd_token": data.CmdToken,
		}))
		frame := readFrame(t, conn)
		assert.Equal(t, "stop", frame["type"])
		assert.Equal(t, "响应已停止", frame["message"])
	})

	t.Run("wrong stop token is ignored", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(map[string]interface{}{
			"type": "stop", "_internal_cmd_token": "WSS_STOP_CMD_forged",
		}))
		// 无任何回发，读取应超时
		_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})
}
