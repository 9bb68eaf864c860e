package websocket_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	wshandler "collaborative-canvas/internal/handler/websocket"
	"collaborative-canvas/internal/hub"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.NewHub(service.NewCollaborationService(session.NewRegistry()))
	go h.Run()
	t.Cleanup(h.Stop)

	handler := wshandler.NewWebSocketHandler(h, "*")
	router := gin.New()
	router.GET("/ws", handler.HandleConnection)
	router.GET("/ws/room/:sessionKey", handler.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestHandleConnection_JoinAndStroke(t *testing.T) {
	srv := setupServer(t)
	conn := dial(t, srv, "/ws/room/team?name=Alice")

	joined := readFrame(t, conn)
	assert.Equal(t, "joined", joined["type"])
	assert.Equal(t, "Alice", joined["name"])
	assert.Equal(t, "#e6194b", joined["color"])
	assert.Equal(t, "room_state", readFrame(t, conn)["type"])
	assert.Equal(t, "users", readFrame(t, conn)["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"stroke","stroke":{"points":[]}}`)))
	op := readFrame(t, conn)
	assert.Equal(t, "op", op["type"])
	inner, ok := op["op"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "stroke", inner["type"])
	assert.NotEmpty(t, inner["opId"])
}

func TestHandleConnection_DefaultSessionAndPeerUpdates(t *testing.T) {
	srv := setupServer(t)
	first := dial(t, srv, "/ws")
	for i := 0; i < 3; i++ {
		readFrame(t, first)
	}

	second := dial(t, srv, "/ws/room/default")
	joined := readFrame(t, second)
	users, ok := joined["users"].([]interface{})
	require.True(t, ok)
	assert.Len(t, users, 2, "/ws 与 /ws/room/default 是同一会话")

	update := readFrame(t, first)
	assert.Equal(t, "users", update["type"])
}

func TestHandleConnection_RejectsOverlongSessionKey(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/ws/room/" + strings.Repeat("k", service.MaxSessionKeyLength+1))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
