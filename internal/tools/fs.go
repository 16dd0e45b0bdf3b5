package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const maxReadBytes = 1 << 20 // 1 MiB per file read

// FileReadTool reads a text file.
type FileReadTool struct{}

func (FileReadTool) Name() string        { return "file_read" }
func (FileReadTool) Description() string { return "Read the contents of a file" }

func (FileReadTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Absolute path to the file to read"},
		},
		"required": []string{"path"},
	}
}

func (FileReadTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	path, err := StringParam(params, "path")
	if err != nil {
		return Result{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to read file: %v", err)
	}
	if st.Size() > maxReadBytes {
		return Result{}, Errf(ErrExecutionFailed, "file too large (%d bytes, limit %d)", st.Size(), maxReadBytes)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to read file: %v", err)
	}
	return Result{
		Success: true,
		Data:    map[string]any{"content": string(b)},
		Message: fmt.Sprintf("Successfully read file: %s", path),
	}, nil
}

// FileListTool lists a directory.
type FileListTool struct{}

func (FileListTool) Name() string        { return "file_list" }
func (FileListTool) Description() string { return "List files in a directory" }

func (FileListTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Absolute path to the directory"},
		},
		"required": []string{"path"},
	}
}

func (FileListTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	path, err := StringParam(params, "path")
	if err != nil {
		return Result{}, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to list directory: %v", err)
	}
	files := make([]any, 0, len(entries))
	for _, e := range entries {
		files = append(files, map[string]any{
			"name":         e.Name(),
			"is_directory": e.IsDir(),
		})
	}
	return Result{
		Success: true,
		Data:    map[string]any{"files": files},
		Message: fmt.Sprintf("Listed %d files in %s", len(files), path),
	}, nil
}

// FileWriteTool writes a whole file, creating parent directories.
type FileWriteTool struct{}

func (FileWriteTool) Name() string { return "file_write" }
func (FileWriteTool) Description() string {
	return "Write content to a file, creating it if needed (full rewrite)"
}

func (FileWriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "Destination path"},
			"content": map[string]any{"type": "string", "description": "Full file content"},
		},
		"required": []string{"path", "content"},
	}
}

func (FileWriteTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	path, err := StringParam(params, "path")
	if err != nil {
		return Result{}, err
	}
	content, ok := params["content"].(string)
	if !ok {
		return Result{}, Errf(ErrInvalidParameters, "content is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, Errf(ErrExecutionFailed, "failed to create directory: %v", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to write file: %v", err)
	}
	return Result{
		Success: true,
		Data:    map[string]any{"bytes": len(content)},
		Message: fmt.Sprintf("Wrote %d bytes to %s", len(content), path),
	}, nil
}

// FileEditTool replaces an exact substring once.
type FileEditTool struct{}

func (FileEditTool) Name() string { return "file_edit" }
func (FileEditTool) Description() string {
	return "Edit a file by replacing an exact string with a new one"
}

func (FileEditTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":       map[string]any{"type": "string", "description": "File to edit"},
			"old_string": map[string]any{"type": "string", "description": "Exact text to replace"},
			"new_string": map[string]any{"type": "string", "description": "Replacement text"},
		},
		"required": []string{"path", "old_string", "new_string"},
	}
}

func (FileEditTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	path, err := StringParam(params, "path")
	if err != nil {
		return Result{}, err
	}
	oldStr, err := StringParam(params, "old_string")
	if err != nil {
		return Result{}, err
	}
	newStr, ok := params["new_string"].(string)
	if !ok {
		return Result{}, Errf(ErrInvalidParameters, "new_string is required")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to read file: %v", err)
	}
	content := string(b)
	n := strings.Count(content, oldStr)
	if n == 0 {
		return Result{}, Errf(ErrExecutionFailed, "old_string not found in %s", path)
	}
	content = strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to write file: %v", err)
	}
	msg := fmt.Sprintf("Edited %s", path)
	if n > 1 {
		msg += fmt.Sprintf(" (old_string occurred %d times; replaced the first)", n)
	}
	return Result{Success: true, Message: msg}, nil
}

// FileDeleteTool removes a single file.
type FileDeleteTool struct{}

func (FileDeleteTool) Name() string        { return "file_delete" }
func (FileDeleteTool) Description() string { return "Delete a file" }

func (FileDeleteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "File to delete"},
		},
		"required": []string{"path"},
	}
}

func (FileDeleteTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	path, err := StringParam(params, "path")
	if err != nil {
		return Result{}, err
	}
	st, err := os.Stat(path)
	if err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to delete: %v", err)
	}
	if st.IsDir() {
		return Result{}, Errf(ErrInvalidParameters, "%s is a directory", path)
	}
	if err := os.Remove(path); err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to delete: %v", err)
	}
	return Result{Success: true, Message: fmt.Sprintf("Deleted %s", path)}, nil
}

// DirectoryCreateTool makes a directory tree.
type DirectoryCreateTool struct{}

func (DirectoryCreateTool) Name() string        { return "directory_create" }
func (DirectoryCreateTool) Description() string { return "Create a directory (and parents)" }

func (DirectoryCreateTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory to create"},
		},
		"required": []string{"path"},
	}
}

func (DirectoryCreateTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	path, err := StringParam(params, "path")
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Result{}, Errf(ErrExecutionFailed, "failed to create directory: %v", err)
	}
	return Result{Success: true, Message: fmt.Sprintf("Created %s", path)}, nil
}

// GlobTool matches file names under a root.
type GlobTool struct{}

func (GlobTool) Name() string        { return "glob" }
func (GlobTool) Description() string { return "Find files matching a glob pattern" }

func (GlobTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{"type": "string", "description": "Glob pattern, e.g. **/*.go"},
			"path":    map[string]any{"type": "string", "description": "Root directory (default .)"},
		},
		"required": []string{"pattern"},
	}
}

func (GlobTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	pattern, err := StringParam(params, "pattern")
	if err != nil {
		return Result{}, err
	}
	root := OptionalString(params, "path", ".")

	const maxMatches = 500
	var matches []string
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if matchGlob(pattern, rel) {
			matches = append(matches, rel)
			if len(matches) >= maxMatches {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil && ctx.Err() != nil {
		return Result{}, Errf(ErrTimeout, "glob cancelled")
	}
	sort.Strings(matches)
	files := make([]any, len(matches))
	for i, m := range matches {
		files[i] = m
	}
	return Result{
		Success: true,
		Data:    map[string]any{"files": files},
		Message: fmt.Sprintf("Found %d files matching %s", len(matches), pattern),
	}, nil
}

// matchGlob supports the ** prefix on top of filepath.Match.
func matchGlob(pattern, rel string) bool {
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimPrefix(pattern, "**/")
		if ok, _ := filepath.Match(suffix, filepath.Base(rel)); ok {
			return true
		}
	}
	ok, _ := filepath.Match(pattern, rel)
	return ok
}

// FileSearchTool greps file contents under a root.
type FileSearchTool struct{}

func (FileSearchTool) Name() string        { return "file_search" }
func (FileSearchTool) Description() string { return "Search for text inside files" }

func (FileSearchTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":        map[string]any{"type": "string", "description": "Text to search for"},
			"path":         map[string]any{"type": "string", "description": "Root directory (default .)"},
			"file_pattern": map[string]any{"type": "string", "description": "Only search files with this extension, e.g. go"},
		},
		"required": []string{"query"},
	}
}

func (FileSearchTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	query, err := StringParam(params, "query")
	if err != nil {
		return Result{}, err
	}
	root := OptionalString(params, "path", ".")
	ext := strings.TrimPrefix(OptionalString(params, "file_pattern", ""), ".")

	const maxHits = 200
	var hits []any
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if ext != "" && !strings.EqualFold(strings.TrimPrefix(filepath.Ext(path), "."), ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxReadBytes {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		for i, line := range strings.Split(string(b), "\n") {
			if strings.Contains(line, query) {
				hits = append(hits, map[string]any{
					"file": path,
					"line": i + 1,
					"text": strings.TrimSpace(line),
				})
				if len(hits) >= maxHits {
					return filepath.SkipAll
				}
			}
		}
		return nil
	})
	if walkErr != nil && ctx.Err() != nil {
		return Result{}, Errf(ErrTimeout, "search cancelled")
	}
	return Result{
		Success: true,
		Data:    map[string]any{"matches": hits},
		Message: fmt.Sprintf("Found %d matches for %q", len(hits), query),
	}, nil
}
