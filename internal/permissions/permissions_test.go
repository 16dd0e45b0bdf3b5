package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	require.Equal(t, ReadOnly, Classify("file_read"))
	require.Equal(t, WriteFile, Classify("file_write"))
	require.Equal(t, ExecuteSafe, Classify("command"))
	require.Equal(t, ExecuteUnsafe, Classify("bash"))
	require.Equal(t, Network, Classify("web_search"))
	// unknown names default to read-only...
	require.Equal(t, ReadOnly, Classify("mystery_tool"))
	// ...unless they come from an external tool server.
	require.Equal(t, Network, Classify("mcp_github_search"))
}

func TestInternalSafeAlwaysApproved(t *testing.T) {
	m := NewManager(Policy{})
	for _, tool := range []string{"think", "todo_write", "skill_list", "skill_invoke", "skill_create"} {
		req := NewRequest(tool, nil)
		require.Equal(t, Approved, m.Check(context.Background(), req), tool)
	}
}

func TestAutoApproveAll(t *testing.T) {
	m := NewManager(Policy{AutoApproveAll: true})
	req := NewRequest("bash", map[string]any{"command": "rm -rf /"})
	require.Equal(t, Approved, m.Check(context.Background(), req))
}

func TestAllowlist(t *testing.T) {
	m := NewManager(Policy{})
	m.Allow("web_search")
	require.True(t, m.Allowed("web_search"))
	req := NewRequest("web_search", map[string]any{"query": "weather"})
	require.Equal(t, Approved, m.Check(context.Background(), req))
}

func TestKnownReadOnlyAutoApproved(t *testing.T) {
	m := NewManager(Policy{})
	req := NewRequest("file_list", map[string]any{"path": "/tmp"})
	require.Equal(t, Approved, m.Check(context.Background(), req))
}

func TestUnknownToolRequiresInteraction(t *testing.T) {
	m := NewManager(Policy{})
	go func() {
		req := <-m.Notifications()
		m.Resolve(req.ID, Denied)
	}()
	req := NewRequest("mystery_tool", nil)
	require.Equal(t, Denied, m.Check(context.Background(), req))
}

func TestInteractiveApproveAndDeny(t *testing.T) {
	m := NewManager(Policy{})

	go func() {
		req := <-m.Notifications()
		m.Resolve(req.ID, Approved)
	}()
	require.Equal(t, Approved, m.Check(context.Background(), NewRequest("file_write", map[string]any{"path": "/tmp/x"})))

	go func() {
		req := <-m.Notifications()
		m.Resolve(req.ID, Denied)
	}()
	require.Equal(t, Denied, m.Check(context.Background(), NewRequest("bash", map[string]any{"command": "ls"})))
}

func TestInteractiveTimeout(t *testing.T) {
	m := NewManager(Policy{})
	m.timeout = 20 * time.Millisecond

	done := make(chan Decision, 1)
	go func() {
		done <- m.Check(context.Background(), NewRequest("bash", map[string]any{"command": "ls"}))
	}()

	// Drain the notification but never resolve.
	<-m.Notifications()
	select {
	case d := <-done:
		require.Equal(t, TimedOut, d)
	case <-time.After(time.Second):
		t.Fatal("check did not time out")
	}
}

func TestResolveUnknownIDIgnored(t *testing.T) {
	m := NewManager(Policy{})
	m.Resolve("nope", Approved)
}

func TestExtractTarget(t *testing.T) {
	require.Equal(t, "/tmp/a", extractTarget(map[string]any{"path": "/tmp/a"}))
	require.Equal(t, "weather", extractTarget(map[string]any{"query": "weather"}))
	require.Equal(t, "ls -la", extractTarget(map[string]any{"command": "ls -la"}))
	require.Equal(t, "", extractTarget(map[string]any{"count": 3}))
}
