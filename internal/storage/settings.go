package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"localagent/internal/inference"
)

// Settings are the user's persisted preferences.
type Settings struct {
	Temperature   float32 `json:"temperature"`
	TopP          float32 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float32 `json:"repeat_penalty"`
	MaxTokens     int     `json:"max_tokens"`
	ContextSize   int     `json:"context_size"`
	SystemPrompt  string  `json:"system_prompt"`
	GPULayers     int     `json:"gpu_layers"`
	ModelsDir     string  `json:"models_directory"`

	// AutoApproveAll skips interactive permission prompts.
	AutoApproveAll bool `json:"auto_approve_all"`
	// AllowedTools are tool names approved without asking.
	AllowedTools []string `json:"allowed_tools"`
}

// DefaultSettings returns the defaults applied on first run.
func DefaultSettings() Settings {
	return Settings{
		Temperature:   0.7,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		MaxTokens:     4096,
		ContextSize:   16384,
		SystemPrompt:  "",
		GPULayers:     99,
		ModelsDir:     "",
	}
}

// Validate clamps all fields into their legal ranges.
func (s *Settings) Validate() {
	if s.Temperature < 0 {
		s.Temperature = 0
	}
	if s.Temperature > 2 {
		s.Temperature = 2
	}
	if s.TopP <= 0 || s.TopP > 1 {
		s.TopP = 0.9
	}
	if s.TopK < 1 {
		s.TopK = 40
	}
	if s.RepeatPenalty < 1 {
		s.RepeatPenalty = 1.1
	}
	if s.MaxTokens < 1 {
		s.MaxTokens = 4096
	}
	if s.MaxTokens > 65536 {
		s.MaxTokens = 65536
	}
	s.ContextSize = inference.SnapContextSize(s.ContextSize)
	if s.GPULayers < 0 {
		s.GPULayers = 0
	}
}

// Params converts the settings into generation parameters.
func (s Settings) Params() inference.GenerationParams {
	return inference.GenerationParams{
		MaxTokens:      s.MaxTokens,
		Temperature:    s.Temperature,
		TopK:           s.TopK,
		TopP:           s.TopP,
		RepeatPenalty:  s.RepeatPenalty,
		MaxContextSize: s.ContextSize,
	}
}

// SettingsStore persists one settings.json under its directory.
type SettingsStore struct {
	dir string
}

// NewSettingsStore ensures dir exists and returns the store.
func NewSettingsStore(dir string) (*SettingsStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	return &SettingsStore{dir: dir}, nil
}

func (s *SettingsStore) path() string { return filepath.Join(s.dir, "settings.json") }

// Load reads settings, falling back to validated defaults when the file is
// missing or corrupt.
func (s *SettingsStore) Load() Settings {
	b, err := os.ReadFile(s.path())
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Msg("settings_read_failed_using_defaults")
		}
		return DefaultSettings()
	}
	var settings Settings
	if err := json.Unmarshal(b, &settings); err != nil {
		log.Warn().Err(err).Msg("settings_parse_failed_using_defaults")
		return DefaultSettings()
	}
	settings.Validate()
	return settings
}

// Save writes settings as pretty JSON.
func (s *SettingsStore) Save(settings Settings) error {
	settings.Validate()
	b, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(s.path(), b, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	log.Debug().Msg("settings_saved")
	return nil
}
