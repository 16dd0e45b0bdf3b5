package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSkillCreateListInvoke(t *testing.T) {
	store := &SkillStore{Dir: t.TempDir()}

	createRes, err := (&SkillCreateTool{Store: store}).Execute(context.Background(), map[string]any{
		"name":        "greeter",
		"description": "Say hello",
		"content":     "Runs a shell script that greets.",
		"files": map[string]any{
			"run.sh": "echo hello from skill",
		},
	})
	require.NoError(t, err)
	require.True(t, createRes.Success)

	listRes, err := (&SkillListTool{Store: store}).Execute(context.Background(), nil)
	require.NoError(t, err)
	skills := listRes.Data["skills"].([]any)
	require.Len(t, skills, 1)
	require.Equal(t, "greeter", skills[0].(map[string]any)["name"])
	require.Equal(t, "Say hello", skills[0].(map[string]any)["description"])

	invokeRes, err := (&SkillInvokeTool{Store: store}).Execute(context.Background(), map[string]any{"name": "greeter"})
	require.NoError(t, err)
	require.True(t, invokeRes.Success)
	require.Contains(t, invokeRes.Data["stdout"], "hello from skill")
}

func TestSkillCreateRejectsBadNames(t *testing.T) {
	store := &SkillStore{Dir: t.TempDir()}
	tool := &SkillCreateTool{Store: store}

	for _, name := range []string{"../escape", "Weird Name", ""} {
		_, err := tool.Execute(context.Background(), map[string]any{"name": name, "content": "x"})
		require.Error(t, err, name)
	}
}

func TestSkillInvokeMissing(t *testing.T) {
	store := &SkillStore{Dir: t.TempDir()}
	_, err := (&SkillInvokeTool{Store: store}).Execute(context.Background(), map[string]any{"name": "ghost"})
	var toolErr *Error
	require.ErrorAs(t, err, &toolErr)
	require.Equal(t, ErrNotFound, toolErr.Kind)
}
