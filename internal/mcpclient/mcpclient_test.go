package mcpclient

import (
	"reflect"
	"testing"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"

	"localagent/internal/permissions"
	"localagent/internal/tools"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"with space", "with_space"},
		{"path/like", "path_like"},
		{"ns:tool", "ns_tool"},
		{"a b/c:d", "a_b_c_d"},
	}
	for _, tc := range cases {
		if got := sanitizeName(tc.in); got != tc.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMCPToolNameCarriesExternalPrefix(t *testing.T) {
	tool := &mcpTool{server: "github", tool: &mcppkg.Tool{Name: "search issues", Description: "Search issues"}}

	got := tool.Name()
	want := permissions.ExternalPrefix + "github_search_issues"
	if got != want {
		t.Fatalf("Name() = %q, want %q", got, want)
	}
	// The prefix is what defaults external tools to the Network level.
	if lvl := permissions.Classify(got); lvl != permissions.Network {
		t.Errorf("Classify(%q) = %v, want Network", got, lvl)
	}
	if tool.Description() != "Search issues" {
		t.Errorf("Description() = %q", tool.Description())
	}
}

func TestNormalizeSchemaDefaults(t *testing.T) {
	// Nothing from the server: safe empty object.
	got := normalizeSchema(nil)
	if got["type"] != "object" {
		t.Errorf("type = %v, want object", got["type"])
	}
	if props, ok := got["properties"].(map[string]any); !ok || len(props) != 0 {
		t.Errorf("properties = %v, want empty map", got["properties"])
	}
}

func TestNormalizeSchemaMergesServerSchema(t *testing.T) {
	in := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string"},
		},
		"required": []any{"query"},
	}
	got := normalizeSchema(in)
	props := got["properties"].(map[string]any)
	if _, ok := props["query"]; !ok {
		t.Errorf("query property lost: %v", got)
	}
	if !reflect.DeepEqual(got["required"], []any{"query"}) {
		t.Errorf("required = %v", got["required"])
	}
}

func TestNormalizeSchemaCoercesBadShapes(t *testing.T) {
	// Non-object type and a properties value of the wrong shape are both
	// coerced back to the safe defaults.
	got := normalizeSchema(map[string]any{"type": "string", "properties": "nope"})
	if got["type"] != "object" {
		t.Errorf("type = %v, want object", got["type"])
	}
	if _, ok := got["properties"].(map[string]any); !ok {
		t.Errorf("properties = %v, want map", got["properties"])
	}
}

func TestSchemaWithNilInputSchema(t *testing.T) {
	tool := &mcpTool{server: "srv", tool: &mcppkg.Tool{Name: "t"}}
	got := tool.Schema()
	if got["type"] != "object" {
		t.Errorf("type = %v, want object", got["type"])
	}
	if _, ok := got["properties"].(map[string]any); !ok {
		t.Errorf("properties missing: %v", got)
	}
}

func TestRemoveOneUnregistersTools(t *testing.T) {
	m := NewManager()
	reg := tools.NewRegistry()

	wrapped := &mcpTool{server: "srv", tool: &mcppkg.Tool{Name: "ping", Description: "ping"}}
	reg.Register(wrapped)
	m.toolNames["srv"] = []string{wrapped.Name()}

	if _, ok := reg.Get(wrapped.Name()); !ok {
		t.Fatal("tool not registered")
	}
	m.RemoveOne("srv", reg)
	if _, ok := reg.Get(wrapped.Name()); ok {
		t.Error("tool still registered after RemoveOne")
	}
	if _, ok := m.toolNames["srv"]; ok {
		t.Error("toolNames entry not cleared")
	}
}
