package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ExaSearchConfig configures the web_search tool.
type ExaSearchConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
	// NumResults is the default result count when the call omits it.
	NumResults int
}

// ExaSearchTool queries the Exa search API.
type ExaSearchTool struct {
	cfg    ExaSearchConfig
	client *http.Client
}

// NewExaSearchTool builds the tool with a hardened client.
func NewExaSearchTool(cfg ExaSearchConfig) *ExaSearchTool {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.exa.ai"
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = 5
	}
	return &ExaSearchTool{
		cfg:    cfg,
		client: &http.Client{Timeout: 20 * time.Second},
	}
}

func (t *ExaSearchTool) Name() string        { return "web_search" }
func (t *ExaSearchTool) Description() string { return "Search the web for real-time information" }

func (t *ExaSearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":       map[string]any{"type": "string", "description": "Search query"},
			"num_results": map[string]any{"type": "integer", "description": "Number of results (default: 5)"},
		},
		"required": []string{"query"},
	}
}

type exaRequest struct {
	Query      string `json:"query"`
	NumResults int    `json:"numResults"`
	Contents   struct {
		Text bool `json:"text"`
	} `json:"contents"`
}

type exaResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		PublishedDate string `json:"publishedDate"`
		Text          string `json:"text"`
	} `json:"results"`
}

func (t *ExaSearchTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	query, err := StringParam(params, "query")
	if err != nil {
		return Result{}, err
	}
	if t.cfg.APIKey == "" {
		return Result{}, Errf(ErrExecutionFailed, "web search is not configured (missing API key)")
	}

	reqBody := exaRequest{Query: query, NumResults: OptionalInt(params, "num_results", t.cfg.NumResults)}
	reqBody.Contents.Text = true
	if reqBody.NumResults < 1 || reqBody.NumResults > 20 {
		reqBody.NumResults = t.cfg.NumResults
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "search request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, Errf(ErrExecutionFailed, "search API returned %d", resp.StatusCode)
	}

	var parsed exaResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Result{}, Errf(ErrExecutionFailed, "decode response: %v", err)
	}

	const snippetLen = 500
	results := make([]any, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		text := r.Text
		if len(text) > snippetLen {
			text = text[:snippetLen] + "..."
		}
		results = append(results, map[string]any{
			"title":     r.Title,
			"url":       r.URL,
			"published": r.PublishedDate,
			"snippet":   text,
		})
	}
	return Result{
		Success: true,
		Data:    map[string]any{"results": results},
		Message: fmt.Sprintf("Found %d results for %q", len(results), query),
	}, nil
}
