package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWebFetchToolHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Test Page</title></head>
<body><article><h1>Heading</h1><p>Some body text with <a href="/link">a link</a>.</p></article></body></html>`))
	}))
	defer srv.Close()

	res, err := NewWebFetchTool().Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 200, res.Data["status"])
	md := res.Data["markdown"].(string)
	require.Contains(t, md, "Heading")
	require.Contains(t, md, "body text")
}

func TestWebFetchToolJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	res, err := NewWebFetchTool().Execute(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	require.Contains(t, res.Data["markdown"], `"status":"ok"`)
}

func TestWebFetchToolRejectsScheme(t *testing.T) {
	_, err := NewWebFetchTool().Execute(context.Background(), map[string]any{"url": "ftp://host/file"})
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, ErrInvalidParameters, toolErr.Kind)
}

func TestExaSearchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("x-api-key"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "go generics", req["query"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Go Blog", "url": "https://go.dev/blog", "text": "An introduction to generics."},
			},
		})
	}))
	defer srv.Close()

	tool := NewExaSearchTool(ExaSearchConfig{APIKey: "test-key", BaseURL: srv.URL})
	res, err := tool.Execute(context.Background(), map[string]any{"query": "go generics"})
	require.NoError(t, err)
	require.True(t, res.Success)
	results := res.Data["results"].([]any)
	require.Len(t, results, 1)
	require.Equal(t, "Go Blog", results[0].(map[string]any)["title"])
}

func TestExaSearchToolUnconfigured(t *testing.T) {
	tool := NewExaSearchTool(ExaSearchConfig{})
	_, err := tool.Execute(context.Background(), map[string]any{"query": "anything"})
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, ErrExecutionFailed, toolErr.Kind)
}

func TestExaSearchToolAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	tool := NewExaSearchTool(ExaSearchConfig{APIKey: "bad", BaseURL: srv.URL})
	_, err := tool.Execute(context.Background(), map[string]any{"query": "q"})
	require.Error(t, err)
}
