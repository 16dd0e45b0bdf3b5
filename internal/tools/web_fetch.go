package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html/charset"
)

const fetchMaxBytes = 4 << 20

// WebFetchTool downloads a page and returns its main content as markdown.
type WebFetchTool struct {
	client *http.Client
}

// NewWebFetchTool builds the tool with a bounded client.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{client: &http.Client{Timeout: 20 * time.Second}}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }
func (t *WebFetchTool) Description() string {
	return "Fetch a web page or API endpoint and return its content as markdown"
}

func (t *WebFetchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{"type": "string", "description": "HTTP or HTTPS URL to fetch"},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	rawURL, err := StringParam(params, "url")
	if err != nil {
		return Result{}, err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, Errf(ErrInvalidParameters, "invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{}, Errf(ErrInvalidParameters, "unsupported scheme: %s", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "build request: %v", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := t.client.Do(req)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "fetch failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, fetchMaxBytes+1))
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "read body: %v", err)
	}
	if len(body) > fetchMaxBytes {
		return Result{}, Errf(ErrExecutionFailed, "response exceeds max bytes (%d)", fetchMaxBytes)
	}

	finalURL := resp.Request.URL.String()
	ct, cs := splitContentType(resp.Header.Get("Content-Type"))

	body, err = toUTF8(body, cs)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "charset decode: %v", err)
	}

	var markdown, title string
	switch {
	case isHTMLContent(ct):
		markdown, title, err = htmlToMarkdown(string(body), finalURL)
		if err != nil {
			return Result{}, Errf(ErrExecutionFailed, "convert page: %v", err)
		}
	case strings.HasPrefix(ct, "text/"), ct == "application/json", strings.HasSuffix(ct, "+json"):
		markdown = string(body)
	default:
		markdown = fmt.Sprintf("Non-text resource (%s, %d bytes)", ct, len(body))
	}

	return Result{
		Success: true,
		Data: map[string]any{
			"url":          finalURL,
			"status":       resp.StatusCode,
			"content_type": ct,
			"title":        title,
			"markdown":     markdown,
		},
		Message: fmt.Sprintf("Fetched %s (%d)", finalURL, resp.StatusCode),
	}, nil
}

func splitContentType(h string) (ctype, cs string) {
	if h == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(h)
	if err != nil {
		return h, ""
	}
	return strings.ToLower(mt), strings.ToLower(params["charset"])
}

func toUTF8(b []byte, label string) ([]byte, error) {
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return b, nil
	}
	r, err := charset.NewReaderLabel(label, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func isHTMLContent(ct string) bool {
	return ct == "text/html" || ct == "application/xhtml+xml" || strings.HasSuffix(ct, "html")
}

// htmlToMarkdown extracts the main article with readability when possible and
// converts the HTML to markdown.
func htmlToMarkdown(html, pageURL string) (markdown, title string, err error) {
	content := html
	if base, perr := url.Parse(pageURL); perr == nil {
		if art, rerr := readability.FromReader(strings.NewReader(html), base); rerr == nil && strings.TrimSpace(art.Content) != "" {
			content = art.Content
			title = strings.TrimSpace(art.Title)
		}
	}

	var opts []converter.ConvertOptionFunc
	if origin := pageOrigin(pageURL); origin != "" {
		opts = append(opts, converter.WithDomain(origin))
	}
	md, err := htmltomarkdown.ConvertString(content, opts...)
	if err != nil {
		return "", "", err
	}
	md = strings.TrimSpace(md)
	if title != "" && !strings.HasPrefix(md, "# ") {
		md = "# " + title + "\n\n" + md
	}
	return md, title, nil
}

func pageOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
