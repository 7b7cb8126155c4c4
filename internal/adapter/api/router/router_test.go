package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transportchat/internal/adapter/api"
	"transportchat/internal/adapter/api/handler"
	"transportchat/internal/adapter/api/middleware"
	"transportchat/internal/adapter/repository"
	"transportchat/internal/domain/service"
	"transportchat/internal/infrastructure/firebase"
	"transportchat/internal/infrastructure/ratelimit"
	"transportchat/internal/infrastructure/websocket"
	"transportchat/internal/usecase"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []service.PushNotification
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, n service.PushNotification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type testApp struct {
	e          *echo.Echo
	uc         *usecase.ChatUseCase
	dispatcher *recordingDispatcher
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	dispatcher := &recordingDispatcher{}
	limiter := ratelimit.NewRateLimiter(ratelimit.Policy{PerMinute: 600, Burst: 100})
	uc := usecase.NewChatUseCase(
		repository.NewMemoryMessageRepository(nil),
		repository.NewMemorySummaryRepository(nil),
		repository.NewMemoryProfileRepository(),
		dispatcher,
		limiter,
		usecase.ChatUseCaseConfig{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	wsManager := websocket.NewManager()
	wsManager.Start(ctx)
	t.Cleanup(func() {
		cancel()
		uc.Wait()
	})

	handler.Setup(uc, wsManager, 16)
	handler.SetupHealthHandler("memory", "none", wsManager)
	handler.SetupDevTokenHandler()

	e := echo.New()
	e.Validator = api.NewValidator()
	Setup(e, middleware.NewAuthMiddleware(firebase.NewDevTokenVerifier(nil, 0)), limiter, "development")

	return &testApp{e: e, uc: uc, dispatcher: dispatcher}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *testApp) do(t *testing.T, method, path, uid, body string) (int, envelope) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if uid != "" {
		req.Header.Set("Authorization", "Bearer dev:"+uid)
	}

	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec.Code, env
}

func TestHealthCheck(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Server is running", body["status"])
	assert.Equal(t, "memory", body["store"])
}

func TestChatRoutesRequireAuth(t *testing.T) {
	app := newTestApp(t)

	code, _ := app.do(t, http.MethodGet, "/v1/chats", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	req := httptest.NewRequest(http.MethodGet, "/v1/chats", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	app.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatRestFlow(t *testing.T) {
	app := newTestApp(t)

	code, env := app.do(t, http.MethodPost, "/v1/chats/d9/messages", "u1", `{"text":"hola"}`)
	require.Equal(t, http.StatusCreated, code)
	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, "hola", sent["text"])
	assert.Equal(t, "u1", sent["sender_id"])

	code, _ = app.do(t, http.MethodPost, "/v1/chats/d9/messages", "u1", `{"text":"   "}`)
	assert.Equal(t, http.StatusAccepted, code)

	code, env = app.do(t, http.MethodGet, "/v1/chats", "d9", "")
	require.Equal(t, http.StatusOK, code)
	var inbox struct {
		Items []struct {
			ID          string         `json:"id"`
			LastMessage string         `json:"last_message"`
			UnreadCount map[string]int `json:"unread_count"`
		} `json:"items"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &inbox))
	require.Equal(t, 1, inbox.Total)
	assert.Equal(t, "d9_u1", inbox.Items[0].ID)
	assert.Equal(t, "hola", inbox.Items[0].LastMessage)
	assert.Equal(t, map[string]int{"d9": 1, "u1": 0}, inbox.Items[0].UnreadCount)

	code, env = app.do(t, http.MethodGet, "/v1/chats/unread", "d9", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"total":1,"has_unread":true}`, string(env.Data))

	code, _ = app.do(t, http.MethodPut, "/v1/chats/u1/read", "d9", "")
	require.Equal(t, http.StatusOK, code)

	code, env = app.do(t, http.MethodGet, "/v1/chats/unread", "d9", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"total":0,"has_unread":false}`, string(env.Data))

	code, env = app.do(t, http.MethodGet, "/v1/chats/u1/messages", "d9", "")
	require.Equal(t, http.StatusOK, code)
	var messages struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &messages))
	assert.Equal(t, 1, messages.Total)

	code, env = app.do(t, http.MethodGet, "/v1/chats/u1", "d9", "")
	require.Equal(t, http.StatusOK, code)
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, "u1", summary["user_id"])
	assert.Equal(t, "d9", summary["driver_id"])

	code, env = app.do(t, http.MethodGet, "/v1/chats/nobody", "d9", "")
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestSendMessageValidation(t *testing.T) {
	app := newTestApp(t)

	code, env := app.do(t, http.MethodPost, "/v1/chats/d9/messages", "u1", `{"text":"`+strings.Repeat("a", 2001)+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestPushTokenRoutes(t *testing.T) {
	app := newTestApp(t)

	code, env := app.do(t, http.MethodPost, "/v1/me/push-test", "d9", "")
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)

	code, env = app.do(t, http.MethodPut, "/v1/me/push-token", "d9", `{"token":"ExponentPushToken[x]","role":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	code, _ = app.do(t, http.MethodPut, "/v1/me/push-token", "d9", `{"token":"ExponentPushToken[x]","role":"driver"}`)
	require.Equal(t, http.StatusOK, code)

	code, _ = app.do(t, http.MethodPost, "/v1/me/push-test", "d9", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, app.dispatcher.count())

	code, env = app.do(t, http.MethodGet, "/v1/me", "d9", "")
	require.Equal(t, http.StatusOK, code)
	var me map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "d9", me["uid"])
}

func TestDevTokenRoute(t *testing.T) {
	app := newTestApp(t)

	code, env := app.do(t, http.MethodGet, "/_dev/token/d9", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"token":"dev:d9","uid":"d9"}`, string(env.Data))

	code, _ = app.do(t, http.MethodGet, "/_dev/token/bad_id", "", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, conn *gorillaws.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestWebSocketChatFlow(t *testing.T) {
	app := newTestApp(t)
	srv := httptest.NewServer(app.e)
	defer srv.Close()

	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL(srv, "/v1/ws/chat?token=dev:u1"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	passenger, _, err := gorillaws.DefaultDialer.Dial(wsURL(srv, "/v1/ws/chat?counterpart=d9&token=dev:u1"), nil)
	require.NoError(t, err)
	defer passenger.Close()

	first := readFrame(t, passenger)
	require.Equal(t, websocket.MessageTypeMessages, first.Type)
	var initial websocket.MessagesData
	require.NoError(t, json.Unmarshal(first.Data, &initial))
	assert.Equal(t, "d9_u1", initial.ChatID)
	assert.Empty(t, initial.Messages)

	require.NoError(t, passenger.WriteJSON(map[string]interface{}{
		"type": "send_message",
		"data": map[string]string{"text": "hola"},
	}))

	update := readFrame(t, passenger)
	require.Equal(t, websocket.MessageTypeMessages, update.Type)
	var updated websocket.MessagesData
	require.NoError(t, json.Unmarshal(update.Data, &updated))
	require.Len(t, updated.Messages, 1)
	assert.Equal(t, "hola", updated.Messages[0].Text)

	ack := readFrame(t, passenger)
	require.Equal(t, websocket.MessageTypeMessageSent, ack.Type)

	require.NoError(t, passenger.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, websocket.MessageTypePong, readFrame(t, passenger).Type)

	inbox, _, err := gorillaws.DefaultDialer.Dial(wsURL(srv, "/v1/ws/inbox?token=dev:d9"), nil)
	require.NoError(t, err)
	defer inbox.Close()

	snapshot := readFrame(t, inbox)
	require.Equal(t, websocket.MessageTypeInbox, snapshot.Type)
	var data websocket.InboxData
	require.NoError(t, json.Unmarshal(snapshot.Data, &data))
	require.Len(t, data.Chats, 1)
	assert.Equal(t, 1, data.Total)
	assert.True(t, data.HasUnread)

	driver, _, err := gorillaws.DefaultDialer.Dial(wsURL(srv, "/v1/ws/chat?counterpart=u1&token=dev:d9"), nil)
	require.NoError(t, err)
	defer driver.Close()

	driverFirst := readFrame(t, driver)
	require.Equal(t, websocket.MessageTypeMessages, driverFirst.Type)

	// Opening the chat clears d9's counter, which the inbox stream reports.
	cleared := readFrame(t, inbox)
	require.Equal(t, websocket.MessageTypeInbox, cleared.Type)
	require.NoError(t, json.Unmarshal(cleared.Data, &data))
	assert.Equal(t, 0, data.Total)
	assert.False(t, data.HasUnread)
}
