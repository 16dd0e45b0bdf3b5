package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordToolErrorStreak(t *testing.T) {
	run := NewRunContext()
	run.RecordTool(ToolHistoryEntry{Tool: "a", IsError: true})
	run.RecordTool(ToolHistoryEntry{Tool: "b", IsError: true})
	require.Equal(t, 2, run.ConsecutiveErrors)

	run.RecordTool(ToolHistoryEntry{Tool: "c"})
	require.Equal(t, 0, run.ConsecutiveErrors)
}

func TestIsStuckOnErrorStreak(t *testing.T) {
	run := NewRunContext()
	for i := 0; i < maxConsecutiveErrors; i++ {
		require.False(t, run.IsStuck())
		run.RecordTool(ToolHistoryEntry{Tool: "x", IsError: true})
	}
	require.True(t, run.IsStuck())
}

func TestIsStuckOnIdenticalCalls(t *testing.T) {
	run := NewRunContext()
	params := map[string]any{"path": "/tmp"}
	run.RecordTool(ToolHistoryEntry{Tool: "file_list", Params: params})
	run.RecordTool(ToolHistoryEntry{Tool: "file_list", Params: params})
	require.False(t, run.IsStuck())
	run.RecordTool(ToolHistoryEntry{Tool: "file_list", Params: params})
	require.True(t, run.IsStuck())
}

func TestNotStuckOnVariedCalls(t *testing.T) {
	run := NewRunContext()
	run.RecordTool(ToolHistoryEntry{Tool: "file_list", Params: map[string]any{"path": "/a"}})
	run.RecordTool(ToolHistoryEntry{Tool: "file_list", Params: map[string]any{"path": "/b"}})
	run.RecordTool(ToolHistoryEntry{Tool: "file_list", Params: map[string]any{"path": "/c"}})
	require.False(t, run.IsStuck())
}

func TestElapsed(t *testing.T) {
	run := NewRunContext()
	run.StartTime = time.Now().Add(-time.Minute)
	require.GreaterOrEqual(t, run.Elapsed(), time.Minute)
}
