package tools

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name string
	desc string
	fn   func(ctx context.Context, params map[string]any) (Result, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return s.desc }
func (s *stubTool) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (s *stubTool) Execute(ctx context.Context, params map[string]any) (Result, error) {
	if s.fn != nil {
		return s.fn(ctx, params)
	}
	return Result{Success: true, Message: "ok"}, nil
}

func TestRegistryRegisterGetList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "b_tool", desc: "second"})
	r.Register(&stubTool{name: "a_tool", desc: "first"})

	got, ok := r.Get("a_tool")
	require.True(t, ok)
	require.Equal(t, "a_tool", got.Name())

	_, ok = r.Get("missing")
	require.False(t, ok)

	require.Equal(t, []string{"a_tool", "b_tool"}, r.Names())
}

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "x", desc: "old"})
	r.Register(&stubTool{name: "x", desc: "new"})

	got, ok := r.Get("x")
	require.True(t, ok)
	require.Equal(t, "new", got.Description())
	require.Len(t, r.List(), 1)
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubTool{name: "x"})
	r.Unregister("x")
	_, ok := r.Get("x")
	require.False(t, ok)
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			r.Register(&stubTool{name: fmt.Sprintf("tool_%d", i)})
		}(i)
		go func() {
			defer wg.Done()
			r.List()
		}()
	}
	wg.Wait()
	require.Len(t, r.List(), 16)
}
