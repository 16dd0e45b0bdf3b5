package tools

import (
	"context"
	"fmt"
	"sync"
)

// ThinkTool gives the model a scratchpad. The thought is recorded in the run
// history but produces no side effects.
type ThinkTool struct{}

func (ThinkTool) Name() string { return "think" }
func (ThinkTool) Description() string {
	return "Record a reasoning step before acting; has no side effects"
}

func (ThinkTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"thought": map[string]any{"type": "string", "description": "The reasoning step"},
		},
		"required": []string{"thought"},
	}
}

func (ThinkTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	thought, err := StringParam(params, "thought")
	if err != nil {
		return Result{}, err
	}
	return Result{
		Success: true,
		Data:    map[string]any{"thought": thought},
		Message: "Thought recorded",
	}, nil
}

// TodoItem is one entry in the agent's working plan.
type TodoItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// TodoWriteTool maintains the in-run task plan.
type TodoWriteTool struct {
	mu    sync.Mutex
	todos []TodoItem
}

func (t *TodoWriteTool) Name() string { return "todo_write" }
func (t *TodoWriteTool) Description() string {
	return "Replace the current task plan with an updated todo list"
}

func (t *TodoWriteTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"todos": map[string]any{
				"type":        "array",
				"description": "Full todo list; replaces the previous one",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":      map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
						"status":  map[string]any{"type": "string", "description": "pending | in_progress | done"},
					},
					"required": []string{"id", "content", "status"},
				},
			},
		},
		"required": []string{"todos"},
	}
}

func (t *TodoWriteTool) Execute(_ context.Context, params map[string]any) (Result, error) {
	raw, ok := params["todos"].([]any)
	if !ok {
		return Result{}, Errf(ErrInvalidParameters, "todos must be an array")
	}
	items := make([]TodoItem, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			return Result{}, Errf(ErrInvalidParameters, "each todo must be an object")
		}
		item := TodoItem{
			ID:      OptionalString(m, "id", ""),
			Content: OptionalString(m, "content", ""),
			Status:  OptionalString(m, "status", "pending"),
		}
		if item.Content == "" {
			return Result{}, Errf(ErrInvalidParameters, "todo content is required")
		}
		items = append(items, item)
	}

	t.mu.Lock()
	t.todos = items
	t.mu.Unlock()

	done := 0
	for _, item := range items {
		if item.Status == "done" {
			done++
		}
	}
	return Result{
		Success: true,
		Data:    map[string]any{"count": len(items), "done": done},
		Message: fmt.Sprintf("Plan updated: %d tasks, %d done", len(items), done),
	}, nil
}

// Todos returns a snapshot of the current plan.
func (t *TodoWriteTool) Todos() []TodoItem {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TodoItem, len(t.todos))
	copy(out, t.todos)
	return out
}
