package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", Errf(ErrExecutionFailed, "git %s: %s", args[0], msg)
	}
	out := stdout.String()
	if len(out) > maxCommandOutput {
		out = out[:maxCommandOutput] + "\n... (truncated)"
	}
	return out, nil
}

// GitStatusTool shows the working tree status.
type GitStatusTool struct{}

func (GitStatusTool) Name() string        { return "git_status" }
func (GitStatusTool) Description() string { return "Show git working tree status" }

func (GitStatusTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "Repository path (default: current directory)"},
		},
	}
}

func (GitStatusTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	out, err := runGit(ctx, OptionalString(params, "path", ""), "status", "--short", "--branch")
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success: true,
		Data:    map[string]any{"status": out},
		Message: "git status",
	}, nil
}

// GitDiffTool shows pending changes.
type GitDiffTool struct{}

func (GitDiffTool) Name() string        { return "git_diff" }
func (GitDiffTool) Description() string { return "Show git diff of working tree or staged changes" }

func (GitDiffTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":   map[string]any{"type": "string", "description": "Repository path (default: current directory)"},
			"staged": map[string]any{"type": "boolean", "description": "Diff the index instead of the working tree"},
		},
	}
}

func (GitDiffTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	args := []string{"diff"}
	if OptionalBool(params, "staged", false) {
		args = append(args, "--staged")
	}
	out, err := runGit(ctx, OptionalString(params, "path", ""), args...)
	if err != nil {
		return Result{}, err
	}
	msg := "git diff"
	if out == "" {
		msg = "No changes"
	}
	return Result{
		Success: true,
		Data:    map[string]any{"diff": out},
		Message: msg,
	}, nil
}

// GitLogTool shows recent history.
type GitLogTool struct{}

func (GitLogTool) Name() string        { return "git_log" }
func (GitLogTool) Description() string { return "Show recent git commit history" }

func (GitLogTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":  map[string]any{"type": "string", "description": "Repository path (default: current directory)"},
			"count": map[string]any{"type": "integer", "description": "Number of commits (default: 10)"},
		},
	}
}

func (GitLogTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	count := OptionalInt(params, "count", 10)
	if count < 1 || count > 100 {
		count = 10
	}
	out, err := runGit(ctx, OptionalString(params, "path", ""),
		"log", "--oneline", "-n", strconv.Itoa(count))
	if err != nil {
		return Result{}, err
	}
	lines := 0
	if s := strings.TrimSpace(out); s != "" {
		lines = len(strings.Split(s, "\n"))
	}
	return Result{
		Success: true,
		Data:    map[string]any{"log": out},
		Message: fmt.Sprintf("Showing %d commits", lines),
	}, nil
}
