package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	handler "collaborative-canvas/internal/handler/http"
	"collaborative-canvas/internal/service"
	"collaborative-canvas/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(reg *session.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handler.NewSessionHandler(service.NewSessionService(reg))
	r := gin.New()
	api := r.Group("/api")
	api.GET("/sessions", h.ListSessions)
	api.GET("/sessions/:sessionKey/state", h.GetState)
	api.GET("/sessions/:sessionKey/participants", h.ListParticipants)
	api.GET("/sessions/:sessionKey/export.pdf", h.ExportPDF)
	return r
}

func perform(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestGetState_UnknownSessionIsEmptyAndNotCreated(t *testing.T) {
	reg := session.NewRegistry()
	r := setupRouter(reg)

	w := perform(r, "/api/sessions/nobody/state")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"strokes":[],"history":[]}`, w.Body.String())
	assert.Empty(t, reg.SessionKeys())
}

func TestGetState_ReflectsUndo(t *testing.T) {
	reg := session.NewRegistry()
	a := reg.AppendStroke("room", json.RawMessage(`{"n":1}`))
	b := reg.AppendStroke("room", json.RawMessage(`{"n":2}`))
	reg.PerformUndo("room", "conn-1")
	r := setupRouter(reg)

	w := perform(r, "/api/sessions/room/state")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Strokes []struct {
			OpID string `json:"opId"`
		} `json:"strokes"`
		History []json.RawMessage `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Strokes, 1)
	assert.Equal(t, a.OpID, body.Strokes[0].OpID)
	assert.NotEqual(t, b.OpID, body.Strokes[0].OpID)
	assert.Len(t, body.History, 3)
}

func TestGetState_InvalidSessionKey(t *testing.T) {
	r := setupRouter(session.NewRegistry())

	w := perform(r, "/api/sessions/"+strings.Repeat("x", service.MaxSessionKeyLength+1)+"/state")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid session key")
}

func TestListParticipants(t *testing.T) {
	reg := session.NewRegistry()
	reg.AddParticipant("room", "conn-1", "Alice")
	r := setupRouter(reg)

	w := perform(r, "/api/sessions/room/participants")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"users":[{"userId":"conn-1","name":"Alice","color":"#e6194b"}]}`, w.Body.String())
}

func TestListSessions(t *testing.T) {
	reg := session.NewRegistry()
	reg.AddParticipant("b", "conn-1", "")
	reg.AppendStroke("a", json.RawMessage(`{}`))
	r := setupRouter(reg)

	w := perform(r, "/api/sessions")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[
		{"sessionKey":"a","participants":0,"historyLength":1,"appliedStrokes":1},
		{"sessionKey":"b","participants":1,"historyLength":0,"appliedStrokes":0}]}`, w.Body.String())
}

func TestExportPDF(t *testing.T) {
	reg := session.NewRegistry()
	reg.AppendStroke("my room", json.RawMessage(`{"color":"#ff0000","width":3,"tool":"brush","points":[{"x":10,"y":10},{"x":80,"y":60}]}`))
	r := setupRouter(reg)

	w := perform(r, "/api/sessions/my%20room/export.pdf")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="my_room.pdf"`)
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
}
