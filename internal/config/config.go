package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	LLM        LLMConfig        `toml:"llm"`
	Workspace  WorkspaceConfig  `toml:"workspace"`
	Datasource DatasourceConfig `toml:"datasource"`
	Observer   ObserverConfig   `toml:"observer"`
}

type LLMConfig struct {
	BaseURL          string   `toml:"base_url"`
	APIKey           string   `toml:"api_key"`
	Model            string   `toml:"model"`
	MaxTokens        int      `toml:"max_tokens"`
	MaxInputTokens   int      `toml:"max_input_tokens"`
	Temperature      float64  `toml:"temperature"`
	AutoSummary      bool     `toml:"auto_summary"`
	MultimodalModels []string `toml:"multimodal_models"`
}

type WorkspaceConfig struct {
	Path        string `toml:"path"`
	SessionsDir string `toml:"sessions_dir"`
	LogDir      string `toml:"log_dir"`
}

type DatasourceConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "postgres"
	DSN    string `toml:"dsn"`
}

type ObserverConfig struct {
	Enabled bool                       `toml:"enabled"`
	Pricing map[string]ObserverPricing `toml:"pricing"`
}

type ObserverPricing struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o",
			MaxTokens:   4096,
			Temperature: 0.0,
			MultimodalModels: []string{
				"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini",
			},
		},
		Workspace: WorkspaceConfig{
			Path:        "workspace",
			SessionsDir: "sessions",
			LogDir:      "logs",
		},
		Datasource: DatasourceConfig{Driver: "sqlite", DSN: "maestro.db"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "maestro.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("MAESTRO_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("MAESTRO_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("MAESTRO_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("MAESTRO_LLM_MAX_INPUT_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.MaxInputTokens = n
		}
	}
	if v := os.Getenv("MAESTRO_WORKSPACE_PATH"); v != "" {
		cfg.Workspace.Path = v
	}
	if v := os.Getenv("MAESTRO_DATASOURCE_DSN"); v != "" {
		cfg.Datasource.DSN = v
	}
	if v := os.Getenv("MAESTRO_AUTO_SUMMARY"); v == "true" || v == "1" {
		cfg.LLM.AutoSummary = true
	}
	if v := os.Getenv("MAESTRO_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
