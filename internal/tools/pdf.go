package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

const maxPDFChars = 100_000

// PDFReadTool extracts plain text from a PDF file.
type PDFReadTool struct{}

func (PDFReadTool) Name() string        { return "pdf_read" }
func (PDFReadTool) Description() string { return "Extract text content from a PDF file" }

func (PDFReadTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":     map[string]any{"type": "string", "description": "Path to the PDF file"},
			"max_page": map[string]any{"type": "integer", "description": "Stop after this page (default: all)"},
		},
		"required": []string{"path"},
	}
}

func (PDFReadTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	path, err := StringParam(params, "path")
	if err != nil {
		return Result{}, err
	}
	f, r, err := pdf.Open(path)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to open pdf: %v", err)
	}
	defer f.Close()

	maxPage := OptionalInt(params, "max_page", r.NumPage())
	if maxPage < 1 || maxPage > r.NumPage() {
		maxPage = r.NumPage()
	}

	var sb strings.Builder
	truncated := false
	for i := 1; i <= maxPage; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
		if sb.Len() > maxPDFChars {
			truncated = true
			break
		}
	}

	text := sb.String()
	if len(text) > maxPDFChars {
		text = text[:maxPDFChars]
		truncated = true
	}
	return Result{
		Success: true,
		Data: map[string]any{
			"content":   text,
			"pages":     r.NumPage(),
			"truncated": truncated,
		},
		Message: fmt.Sprintf("Extracted text from %s (%d pages)", path, r.NumPage()),
	}, nil
}
