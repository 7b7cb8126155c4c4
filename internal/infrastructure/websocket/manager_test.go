package websocket

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
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func startEchoServer(t *testing.T, m *Manager, handler FrameHandler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(r.URL.Query().Get("uid"), conn, 8, handler)
		if !m.Add(client) {
			conn.Close()
			return
		}
		go client.WritePump()
		client.ReadPump(m)
	}))
}

func dial(t *testing.T, srv *httptest.Server, uid string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?uid=" + uid
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]interface{}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestPingPongAndCustomFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager()
	m.Start(ctx)

	srv := startEchoServer(t, m, func(c *Client, frameType string, data json.RawMessage) {
		var in SendMessageData
		if err := json.Unmarshal(data, &in); err != nil {
			c.SendError(err)
			return
		}
		c.SendFrame(MessageTypeMessageSent, MessageSentData{ChatID: "d9_u1", Message: MessageData{Text: in.Text}})
	})
	defer srv.Close()

	conn := dial(t, srv, "u1")
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, MessageTypePong, readFrame(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "send_message", "data": map[string]string{"text": "hola"}}))
	frame := readFrame(t, conn)
	assert.Equal(t, MessageTypeMessageSent, frame["type"])
	data := frame["data"].(map[string]interface{})
	assert.Equal(t, "hola", data["message"].(map[string]interface{})["text"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	frame = readFrame(t, conn)
	assert.Equal(t, MessageTypeError, frame["type"])
	assert.Equal(t, "BAD_REQUEST", frame["data"].(map[string]interface{})["code"])
}

func TestManagerTracksAndFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager()
	m.Start(ctx)

	srv := startEchoServer(t, m, nil)
	defer srv.Close()

	a := dial(t, srv, "d9")
	b := dial(t, srv, "d9")
	c := dial(t, srv, "u1")
	defer c.Close()

	require.Eventually(t, func() bool { return m.Count() == 3 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, m.SendToUser("d9", []byte(`{"type":"inbox"}`)))
	assert.Equal(t, "inbox", readFrame(t, a)["type"])
	assert.Equal(t, "inbox", readFrame(t, b)["type"])

	a.Close()
	b.Close()
	require.Eventually(t, func() bool { return m.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestManagerShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager()
	m.Start(ctx)

	srv := startEchoServer(t, m, nil)
	defer srv.Close()

	conn := dial(t, srv, "u1")
	defer conn.Close()
	require.Eventually(t, func() bool { return m.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop")
	}
	assert.False(t, m.Add(NewClient("late", nil, 1, nil)))
}

func TestEnqueueDropsSlowClient(t *testing.T) {
	client := NewClient("u1", nil, 1, nil)

	assert.True(t, client.Enqueue([]byte("a")))
	assert.False(t, client.Enqueue([]byte("b")))
	assert.False(t, client.Enqueue([]byte("c")))

	client.Close()
}
