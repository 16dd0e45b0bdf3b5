// Package mcpclient connects to external MCP tool servers and registers
// their tools into the local registry. From the agent's perspective such
// tools are indistinguishable from built-in ones, except that their names
// carry the external prefix and therefore default to the Network permission
// level.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	mcppkg "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"localagent/internal/config"
	"localagent/internal/permissions"
	"localagent/internal/tools"
	"localagent/internal/version"
)

// Manager holds active MCP client sessions and the tool names each one
// contributed.
type Manager struct {
	sessions  map[string]*mcppkg.ClientSession
	toolNames map[string][]string
}

// NewManager creates a new Manager.
func NewManager() *Manager {
	return &Manager{
		sessions:  map[string]*mcppkg.ClientSession{},
		toolNames: map[string][]string{},
	}
}

// Close closes all active sessions.
func (m *Manager) Close() {
	for _, s := range m.sessions {
		_ = s.Close()
	}
}

// RegisterFromConfig connects to the configured MCP servers concurrently and
// registers their tools. A server that fails to connect is skipped with a
// warning; the rest still come up.
func (m *Manager) RegisterFromConfig(ctx context.Context, reg *tools.Registry, mcpCfg config.MCPConfig) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	results := make([]error, len(mcpCfg.Servers))
	for i, srv := range mcpCfg.Servers {
		g.Go(func() error {
			results[i] = m.RegisterOne(gctx, reg, srv)
			return nil
		})
	}
	_ = g.Wait()
	for i, err := range results {
		if err != nil {
			log.Warn().Str("server", mcpCfg.Servers[i].Name).Err(err).Msg("mcp_server_skipped")
		}
	}
	return nil
}

// RegisterOne connects to a single MCP server and registers its tools.
func (m *Manager) RegisterOne(ctx context.Context, reg *tools.Registry, srv config.MCPServerConfig) error {
	if strings.TrimSpace(srv.Name) == "" {
		return fmt.Errorf("server name required")
	}

	// If already present, close it first (implicit update/replace).
	m.RemoveOne(srv.Name, reg)

	opts := &mcppkg.ClientOptions{}
	if srv.KeepAliveSeconds > 0 {
		opts.KeepAlive = time.Duration(srv.KeepAliveSeconds) * time.Second
	}
	client := mcppkg.NewClient(&mcppkg.Implementation{Name: "localagent", Version: version.Version}, opts)

	var session *mcppkg.ClientSession
	var err error

	switch {
	case strings.TrimSpace(srv.Command) != "":
		cleanCmd := filepath.Clean(srv.Command)
		if cleanCmd != srv.Command || filepath.IsAbs(cleanCmd) || strings.Contains(cleanCmd, string(os.PathSeparator)+"..") {
			return fmt.Errorf("invalid command path")
		}
		cmd := exec.Command(cleanCmd, srv.Args...)
		if len(srv.Env) > 0 {
			env := os.Environ()
			for k, v := range srv.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			cmd.Env = env
		}
		session, err = client.Connect(ctx, &mcppkg.CommandTransport{Command: cmd}, nil)
	case strings.TrimSpace(srv.URL) != "":
		transport := &mcppkg.StreamableClientTransport{Endpoint: srv.URL}
		session, err = client.Connect(ctx, transport, nil)
	default:
		return fmt.Errorf("invalid config: neither command nor url provided")
	}
	if err != nil {
		return err
	}
	m.sessions[srv.Name] = session

	var tNames []string
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			break
		}
		t := &mcpTool{server: srv.Name, session: session, tool: tool}
		reg.Register(t)
		tNames = append(tNames, t.Name())
	}
	m.toolNames[srv.Name] = tNames
	log.Info().Str("server", srv.Name).Strs("tools", tNames).Msg("mcp_server_connected")
	return nil
}

// RemoveOne closes the session for the named server and unregisters its
// tools.
func (m *Manager) RemoveOne(name string, reg *tools.Registry) {
	if s, ok := m.sessions[name]; ok {
		_ = s.Close()
		delete(m.sessions, name)
	}
	if names, ok := m.toolNames[name]; ok {
		for _, tName := range names {
			reg.Unregister(tName)
		}
		delete(m.toolNames, name)
	}
}

// mcpTool adapts an MCP tool to the local tools.Tool interface.
type mcpTool struct {
	server  string
	session *mcppkg.ClientSession
	tool    *mcppkg.Tool
}

// Name carries the external prefix so permission classification defaults the
// tool to the Network level.
func (t *mcpTool) Name() string {
	return permissions.ExternalPrefix + sanitizeName(t.server+"_"+t.tool.Name)
}

func (t *mcpTool) Description() string { return t.tool.Description }

func (t *mcpTool) Schema() map[string]any {
	var m map[string]any
	if t.tool.InputSchema != nil {
		if b, err := json.Marshal(t.tool.InputSchema); err == nil {
			_ = json.Unmarshal(b, &m)
		}
	}
	return normalizeSchema(m)
}

// normalizeSchema coerces a server-provided input schema into the object
// shape the rest of the agent expects: always an object, always with a
// properties map, even when the server sent nothing usable.
func normalizeSchema(m map[string]any) map[string]any {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	for k, v := range m {
		params[k] = v
	}
	if params["type"] != "object" {
		params["type"] = "object"
	}
	if _, ok := params["properties"].(map[string]any); !ok {
		params["properties"] = map[string]any{}
	}
	return params
}

func (t *mcpTool) Execute(ctx context.Context, params map[string]any) (tools.Result, error) {
	args := any(params)
	if params == nil {
		args = map[string]any{}
	}
	res, err := t.session.CallTool(ctx, &mcppkg.CallToolParams{Name: t.tool.Name, Arguments: args})
	if err != nil {
		return tools.Result{}, tools.Errf(tools.ErrExecutionFailed, "mcp call failed: %v", err)
	}

	texts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if v, ok := c.(*mcppkg.TextContent); ok {
			texts = append(texts, v.Text)
		}
	}
	data := map[string]any{}
	if res.StructuredContent != nil {
		data["structured"] = res.StructuredContent
	}
	if b, err := json.Marshal(res.Content); err == nil {
		var anyc any
		if json.Unmarshal(b, &anyc) == nil {
			data["content"] = anyc
		}
	}
	msg := strings.Join(texts, "\n")
	if res.IsError {
		if msg == "" {
			msg = "tool reported an error"
		}
		return tools.Result{}, tools.Errf(tools.ErrExecutionFailed, "%s", msg)
	}
	if msg == "" {
		msg = fmt.Sprintf("%s returned %d content blocks", t.tool.Name, len(res.Content))
	}
	return tools.Result{Success: true, Data: data, Message: msg}, nil
}

func sanitizeName(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
