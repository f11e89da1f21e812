package es

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tzappu-go/internal/config"
	"tzappu-go/internal/model"
)

// newFakeIndex 启动一个伪 Elasticsearch 服务，响应头带上产品标识以通过客户端校验。
func newFakeIndex(t *testing.T, handler http.HandlerFunc) *ChatIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(config.ElasticsearchConfig{Addresses: srv.URL})
	require.NoError(t, err)
	return NewChatIndex(client, "saved_chats")
}

func TestChatIndex_IndexChat(t *testing.T) {
	var gotPath, gotMethod string
	var gotDoc model.ChatDocument
	index := newFakeIndex(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotDoc))
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	doc := model.ChatDocument{ChatID: "c1", Title: "Greeting", Content: "user: Hello", UpdatedAt: time.Now().UTC()}
	require.NoError(t, index.IndexChat(context.Background(), doc))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/saved_chats/_doc/c1", gotPath)
	assert.Equal(t, "Greeting", gotDoc.Title)
}

func TestChatIndex_DeleteChatIgnoresMissing(t *testing.T) {
	index := newFakeIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"result":"not_found"}`))
	})
	assert.NoError(t, index.DeleteChat(context.Background(), "missing"))
}

func TestChatIndex_IndexChatError(t *testing.T) {
	index := newFakeIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})
	assert.Error(t, index.IndexChat(context.Background(), model.ChatDocument{ChatID: "c1"}))
}

func TestChatIndex_SearchChats(t *testing.T) {
	var body map[string]interface{}
	index := newFakeIndex(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/saved_chats/_search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_score":2.5,"_source":{"chat_id":"c1","title":"Beach trip","content":"user: beach","updated_at":"2026-01-02T03:04:05Z"},
			 "highlight":{"content":["user: <em>beach</em>"]}},
			{"_score":1.0,"_source":{"chat_id":"c2","title":"Other","content":"x","updated_at":"2026-01-01T00:00:00Z"}}
		]}}`))
	})

	hits, err := index.SearchChats(context.Background(), "beach", "beach", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "c1", hits[0].ChatID)
	assert.Equal(t, "Beach trip", hits[0].Title)
	assert.InDelta(t, 2.5, hits[0].Score, 1e-9)
	assert.Equal(t, "user: <em>beach</em>", hits[0].Snippet)
	assert.Empty(t, hits[1].Snippet)

	assert.InDelta(t, 5, body["size"], 1e-9)
	boolQuery := body["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Contains(t, boolQuery, "should")
}

func TestBuildSearchQueryWithoutPhrase(t *testing.T) {
	q := buildSearchQuery("hotel", "", 10)
	boolQuery := q["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.NotContains(t, boolQuery, "should")
	assert.Equal(t, 10, q["size"])
}
