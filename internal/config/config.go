// Package config loads the application configuration from a YAML file plus
// environment overrides (optionally via .env).
package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the full application configuration.
type Config struct {
	// DataDir holds conversations, settings, and skills. Defaults to
	// ~/.local/share/localagent.
	DataDir string `yaml:"data_dir"`
	// ModelsDir is scanned for .gguf files. Defaults to <DataDir>/models.
	ModelsDir string `yaml:"models_dir"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Agent     AgentConfig     `yaml:"agent"`
	Tools     ToolsConfig     `yaml:"tools"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// TelemetryConfig controls OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
}

// AgentConfig bounds agent runs.
type AgentConfig struct {
	MaxIterations   int  `yaml:"max_iterations"`
	ToolTimeoutSecs int  `yaml:"tool_timeout_secs"`
	HistoryWindow   int  `yaml:"history_window"`
	GenerateTitles  bool `yaml:"generate_titles"`
}

// ToolTimeout converts the configured seconds into a duration.
func (a AgentConfig) ToolTimeout() time.Duration {
	if a.ToolTimeoutSecs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.ToolTimeoutSecs) * time.Second
}

// ToolsConfig toggles tool families and carries their credentials.
type ToolsConfig struct {
	EnableFilesystem bool   `yaml:"enable_filesystem"`
	EnableCommands   bool   `yaml:"enable_commands"`
	EnableGit        bool   `yaml:"enable_git"`
	EnableWeb        bool   `yaml:"enable_web"`
	ExaAPIKey        string `yaml:"exa_api_key"`
}

// MCPServerConfig describes one external tool server.
type MCPServerConfig struct {
	Name             string            `yaml:"name"`
	Command          string            `yaml:"command"`
	Args             []string          `yaml:"args"`
	Env              map[string]string `yaml:"env"`
	URL              string            `yaml:"url"`
	KeepAliveSeconds int               `yaml:"keep_alive_seconds"`
}

// MCPConfig lists external tool servers.
type MCPConfig struct {
	Servers []MCPServerConfig `yaml:"servers"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	cfg := Config{}
	cfg.DataDir = defaultDataDir()
	cfg.ModelsDir = filepath.Join(cfg.DataDir, "models")
	cfg.Log.Level = "info"
	cfg.Agent.MaxIterations = 10
	cfg.Agent.ToolTimeoutSecs = 30
	cfg.Agent.HistoryWindow = 40
	cfg.Agent.GenerateTitles = true
	cfg.Tools.EnableFilesystem = true
	cfg.Tools.EnableGit = true
	cfg.Tools.EnableWeb = true
	cfg.Tools.EnableCommands = false
	cfg.Telemetry.ServiceName = "localagent"
	return cfg
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./localagent-data"
	}
	return filepath.Join(home, ".local", "share", "localagent")
}

// ConversationsDir is where conversation JSON files live.
func (c Config) ConversationsDir() string { return filepath.Join(c.DataDir, "conversations") }

// SkillsDir is where created skills live.
func (c Config) SkillsDir() string { return filepath.Join(c.DataDir, "skills") }
