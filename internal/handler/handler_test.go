package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tzappu-go/internal/config"
	"tzappu-go/internal/model"
	"tzappu-go/internal/repository"
	"tzappu-go/internal/service"
	"tzappu-go/internal/session"
	"tzappu-go/pkg/database"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// scriptedGenerator 对 "fail" 返回生成失败，其余消息回复 "Hi there"。
func scriptedGenerator() session.Generator {
	return session.GeneratorFunc(func(_ context.Context, history []model.ChatMessage) (model.ChatMessage, error) {
		if history[len(history)-1].Content == "fail" {
			return model.ChatMessage{}, &session.GenerationError{Reason: session.ReasonUnavailable, Err: errors.New("provider down")}
		}
		return model.NewChatMessage(model.RoleAssistant, "Hi there"), nil
	})
}

const testOrigin = "http://localhost:3000"

const testWeatherCSV = `date,lat,lon,afternoon_temp,precip,wind_max_speed,humidity_afternoon,cloud_cover_afternoon
2025-05-01,44.31667,23.8,295.15,0,2,50,20
2025-05-02,44.31667,23.8,283.15,1.5,6,80,90
2025-05-03,44.31667,23.8,300.15,0,2,50,20
`

func newTestRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "chats.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	manager := session.NewManager(scriptedGenerator())
	t.Cleanup(manager.Close)

	weather, err := repository.ReadWeatherCSV(strings.NewReader(testWeatherCSV))
	require.NoError(t, err)
	planner := service.NewPlannerService(weather)

	chatHandler := NewChatHandler(service.NewConversationService(manager), []string{testOrigin})
	plannerHandler := NewPlannerHandler(planner)
	savedHandler := NewSavedChatHandler(service.NewSavedChatService(
		repository.NewSavedChatRepository(db), nil, manager, nil, nil))
	searchHandler := NewSearchHandler(service.NewSearchService(nil))

	r := gin.New()
	r.GET("/health", NewHealthHandler(manager, planner).Health)
	r.POST("/plan-event", plannerHandler.PlanEvent)
	r.GET("/available-options", plannerHandler.AvailableOptions)
	r.GET("/event-criteria/:event", plannerHandler.EventCriteria)
	api := r.Group("/api/v1/chat")
	api.POST("", chatHandler.Send)
	api.POST("/clear", chatHandler.Clear)
	api.GET("/history", chatHandler.History)
	api.POST("/save", savedHandler.Save)
	api.GET("/load/:chatId", savedHandler.Load)
	api.GET("/list", savedHandler.List)
	api.PUT("/update/:chatId", savedHandler.Update)
	api.DELETE("/delete/:chatId", savedHandler.Delete)
	api.GET("/export/:chatId", savedHandler.Export)
	api.GET("/search", searchHandler.Search)
	r.GET("/chat/ws/:sessionId", chatHandler.Stream)
	return r, manager
}

func do(t *testing.T, r http.Handler, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v1/chat", `{"message":"Hello","session_id":"s1"}`)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status         string         `json:"status"`
		Sessions       map[string]int `json:"sessions"`
		WeatherService string         `json:"weather_service"`
		Timestamp      string         `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, map[string]int{"total": 1, "busy": 0}, body.Sessions)
	assert.Equal(t, "available", body.WeatherService)
	assert.NotEmpty(t, body.Timestamp)
}

func TestHealthWeatherUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := session.NewManager(scriptedGenerator())
	t.Cleanup(manager.Close)
	r := gin.New()
	r.GET("/health", NewHealthHandler(manager, service.NewPlannerService(nil)).Health)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"weather_service":"unavailable"`)
}

func TestChatFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/chat", `{"message":"Hello","session_id":"s1"}`)
	require.Equal(t, http.StatusOK, code)
	var sent struct {
		Response  string `json:"response"`
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sent))
	assert.Equal(t, "Hi there", sent.Response)
	assert.Equal(t, "s1", sent.SessionID)

	code, env = do(t, r, http.MethodPost, "/api/v1/chat/save", `{"session_id":"s1","title":"Greeting"}`)
	require.Equal(t, http.StatusOK, code)
	var saved struct {
		ChatID string `json:"chat_id"`
		Title  string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	require.NotEmpty(t, saved.ChatID)
	assert.Equal(t, "Greeting", saved.Title)

	code, env = do(t, r, http.MethodGet, "/api/v1/chat/list", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Chats []model.ChatSummary `json:"chats"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Chats, 1)
	assert.Equal(t, saved.ChatID, list.Chats[0].ChatID)
	assert.Equal(t, 2, list.Chats[0].MessageCount)

	code, _ = do(t, r, http.MethodPost, "/api/v1/chat/clear", `{"session_id":"s1"}`)
	require.Equal(t, http.StatusOK, code)
	code, env = do(t, r, http.MethodGet, "/api/v1/chat/history?session_id=s1", "")
	require.Equal(t, http.StatusOK, code)
	var history struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Empty(t, history.Messages)

	code, env = do(t, r, http.MethodGet, "/api/v1/chat/load/"+saved.ChatID, "")
	require.Equal(t, http.StatusOK, code)
	var loaded struct {
		Messages  []model.ChatMessage `json:"messages"`
		SessionID string              `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &loaded))
	require.Len(t, loaded.Messages, 2)
	assert.Equal(t, "s1", loaded.SessionID)

	_, env = do(t, r, http.MethodGet, "/api/v1/chat/history?session_id=s1", "")
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history.Messages, 2, "load restores the live session")
}

func TestChatErrors(t *testing.T) {
	r, manager := newTestRouter(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/chat", `{"message":"fail","session_id":"s1"}`)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, session.ReasonUnavailable, env.Message)
	assert.Len(t, manager.History("s1"), 1)

	code, _ = do(t, r, http.MethodPost, "/api/v1/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, r, http.MethodPost, "/api/v1/chat/save", `{"session_id":"empty"}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSavedChatErrors(t *testing.T) {
	r, _ := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v1/chat", `{"message":"Hello","session_id":"s1"}`)
	_, env := do(t, r, http.MethodPost, "/api/v1/chat/save", `{"session_id":"s1"}`)
	var saved struct {
		ChatID string `json:"chat_id"`
		Title  string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.True(t, strings.HasPrefix(saved.Title, "Chat "))

	code, _ := do(t, r, http.MethodPut, "/api/v1/chat/update/"+saved.ChatID, `{"title":"  "}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodPut, "/api/v1/chat/update/unknown", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, code)
	code, env = do(t, r, http.MethodPut, "/api/v1/chat/update/"+saved.ChatID, `{"title":"Renamed"}`)
	require.Equal(t, http.StatusOK, code)
	var summary model.ChatSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, "Renamed", summary.Title)

	code, _ = do(t, r, http.MethodDelete, "/api/v1/chat/delete/"+saved.ChatID, "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, r, http.MethodDelete, "/api/v1/chat/delete/"+saved.ChatID, "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, r, http.MethodGet, "/api/v1/chat/load/"+saved.ChatID, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDisabledFeatures(t *testing.T) {
	r, _ := newTestRouter(t)
	code, _ := do(t, r, http.MethodGet, "/api/v1/chat/search?q=beach", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = do(t, r, http.MethodGet, "/api/v1/chat/search", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, r, http.MethodGet, "/api/v1/chat/export/any", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestStream(t *testing.T) {
	r, manager := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws/ws1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() map[string]interface{} {
		var frame map[string]interface{}
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"message":"Hello"}`)))
	reply := readFrame()
	assert.Equal(t, "reply", reply["type"])
	assert.Equal(t, "Hi there", reply["content"])
	assert.Equal(t, "completion", readFrame()["type"])

	// 失败不会关闭连接
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("fail")))
	failure := readFrame()
	assert.Equal(t, "error", failure["type"])
	assert.Equal(t, session.ReasonUnavailable, failure["error"])
	assert.Equal(t, "completion", readFrame()["type"])

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("again")))
	assert.Equal(t, "reply", readFrame()["type"])
	readFrame()

	assert.Len(t, manager.History("ws1"), 5)
}

func TestStreamRejectsDisallowedOrigin(t *testing.T) {
	r, _ := newTestRouter(t)
	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws/ws1"

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", testOrigin)
	conn, _, err = websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}

func TestPlanner(t *testing.T) {
	r, _ := newTestRouter(t)

	code, env := do(t, r, http.MethodPost, "/plan-event", `{"city":"craiova","event":"Picnic","month":5,"limit":2}`)
	require.Equal(t, http.StatusOK, code, env.Message)
	var plan model.EventPlan
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	assert.Equal(t, "Craiova", plan.City)
	assert.Equal(t, "picnic", plan.Event)
	assert.Equal(t, service.DefaultPlanYear, plan.Year)
	require.Len(t, plan.BestDays, 2)
	assert.Equal(t, "2025-05-01", plan.BestDays[0].Date)
	assert.Equal(t, 100.0, plan.BestDays[0].Score)
	assert.Equal(t, "2025-05-03", plan.BestDays[1].Date)

	code, env = do(t, r, http.MethodPost, "/plan-event", `{"city":"Sibiu","event":"concert","month":1}`)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &plan))
	assert.Empty(t, plan.BestDays)

	code, _ = do(t, r, http.MethodPost, "/plan-event", `{"city":"Craiova","event":"picnic"}`)
	assert.Equal(t, http.StatusBadRequest, code, "month is required")
	code, _ = do(t, r, http.MethodPost, "/plan-event", `{"city":"Craiova","event":"picnic","month":5,"limit":0}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, env = do(t, r, http.MethodPost, "/plan-event", `{"city":"Paris","event":"picnic","month":5}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "Craiova")
	code, _ = do(t, r, http.MethodPost, "/plan-event", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(t, r, http.MethodGet, "/available-options", "")
	require.Equal(t, http.StatusOK, code)
	var options struct {
		Cities []string `json:"cities"`
		Events []string `json:"events"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &options))
	assert.Contains(t, options.Cities, "Drobeta-Turnu Severin")
	assert.Contains(t, options.Events, "zi_nastere")

	code, env = do(t, r, http.MethodGet, "/event-criteria/NUNTA", "")
	require.Equal(t, http.StatusOK, code)
	var criteria struct {
		Event    string              `json:"event"`
		Criteria model.EventCriteria `json:"criteria"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &criteria))
	assert.Equal(t, "nunta", criteria.Event)
	assert.Equal(t, [2]float64{16, 26}, criteria.Criteria.TempRange)
	assert.Equal(t, 30.0, criteria.Criteria.MaxClouds)

	code, env = do(t, r, http.MethodGet, "/event-criteria/rave", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, env.Message, "picnic")
}

func TestPlannerUnavailable(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPlannerHandler(service.NewPlannerService(nil))
	r := gin.New()
	r.POST("/plan-event", h.PlanEvent)
	r.GET("/available-options", h.AvailableOptions)
	r.GET("/event-criteria/:event", h.EventCriteria)

	code, _ := do(t, r, http.MethodPost, "/plan-event", `{"city":"Craiova","event":"picnic","month":5}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = do(t, r, http.MethodGet, "/available-options", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	code, _ = do(t, r, http.MethodGet, "/event-criteria/picnic", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: &session.GenerationError{Reason: session.ReasonTimeout}, status: http.StatusBadGateway},
		{err: session.ErrEmptyMessage, status: http.StatusBadRequest},
		{err: service.ErrInvalidTitle, status: http.StatusBadRequest},
		{err: service.ErrChatNotFound, status: http.StatusNotFound},
		{err: service.ErrEmptyHistory, status: http.StatusNotFound},
		{err: session.ErrManagerClosed, status: http.StatusServiceUnavailable},
		{err: service.ErrPlannerUnavailable, status: http.StatusServiceUnavailable},
		{err: fmt.Errorf("%w: month", service.ErrInvalidPlanRequest), status: http.StatusBadRequest},
		{err: service.ErrUnknownCity, status: http.StatusBadRequest},
		{err: service.ErrUnknownEvent, status: http.StatusBadRequest},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
