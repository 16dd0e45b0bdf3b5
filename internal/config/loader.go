package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads the config file at path (<DataDir>/config.yaml when path is
// empty; a missing file leaves the defaults), then applies environment
// overrides. A .env file in the working directory is honored first.
func Load(path string) (Config, error) {
	// Use Overload so .env values deterministically control development
	// runs even when the variables are already exported.
	_ = godotenv.Overload()

	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.yaml")
	}
	if b, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	normalize(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("LOCALAGENT_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCALAGENT_MODELS_DIR")); v != "" {
		cfg.ModelsDir = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCALAGENT_LOG_LEVEL")); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("LOCALAGENT_LOG_PATH")); v != "" {
		cfg.Log.Path = v
	}
	if v := strings.TrimSpace(os.Getenv("EXA_API_KEY")); v != "" {
		cfg.Tools.ExaAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.Enabled = true
		cfg.Telemetry.Endpoint = v
	}
}

func normalize(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir()
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = filepath.Join(cfg.DataDir, "models")
	}
	if cfg.Agent.MaxIterations <= 0 {
		cfg.Agent.MaxIterations = 10
	}
	if cfg.Agent.HistoryWindow <= 0 {
		cfg.Agent.HistoryWindow = 40
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "localagent"
	}
}
