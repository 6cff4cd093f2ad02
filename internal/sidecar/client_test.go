package sidecar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ai-studio/workflow-core/internal/apperr"
)

func TestClient_ChatDirect_SendsSignedTokenAndReturnsResponse(t *testing.T) {
	var gotToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-AI-Studio-Token")
		assert.Equal(t, "/chat/direct", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"content": "hi there"})
	}))
	defer server.Close()

	client := NewClient(server.URL, []byte("test-secret"))
	out, err := client.ChatDirect(context.Background(), map[string]interface{}{"messages": []string{"hello"}})
	require.NoError(t, err)
	assert.Equal(t, "hi there", out["content"])

	assert.NotEmpty(t, gotToken)
	parsed, parseErr := jwt.Parse(gotToken, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, parseErr)
	assert.True(t, parsed.Valid)
}

func TestClient_ChatDirect_NonOKStatusReturnsSidecarError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewClient(server.URL, []byte("secret"))
	_, err := client.ChatDirect(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.Equal(t, apperr.Sidecar, apperr.KindOf(err))
}

func TestClient_Embed_ParsesVectorsAndDimensions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"vectors":    [][]float32{{0.1, 0.2}, {0.3, 0.4}},
			"dimensions": 2,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, []byte("secret"))
	vectors, dims, err := client.Embed(context.Background(), []string{"a", "b"}, "openai", "text-embedding-3-small", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, dims)
	assert.Len(t, vectors, 2)
}

func TestClient_Extract_ReturnsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"text": "extracted content"})
	}))
	defer server.Close()

	client := NewClient(server.URL, []byte("secret"))
	text, err := client.Extract(context.Background(), "/tmp/doc.pdf", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "extracted content", text)
}

func TestClient_ExecuteTool_ReturnsResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tools/execute", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": map[string]interface{}{"ok": true}})
	}))
	defer server.Close()

	client := NewClient(server.URL, []byte("secret"))
	result, err := client.ExecuteTool(context.Background(), "web_search", map[string]interface{}{"q": "golang"})
	require.NoError(t, err)
	m, ok := result.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, m["ok"])
}

func TestClient_Health_OKReturnsNoError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, []byte("secret"))
	assert.NoError(t, client.Health(context.Background()))
}

func TestClient_Health_NonOKReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, []byte("secret"))
	assert.Error(t, client.Health(context.Background()))
}
