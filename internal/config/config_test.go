package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Model != "gpt-4o" || cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("llm defaults: %+v", cfg.LLM)
	}
	if cfg.Workspace.Path != "workspace" || cfg.Workspace.SessionsDir != "sessions" {
		t.Errorf("workspace defaults: %+v", cfg.Workspace)
	}
	if cfg.Datasource.Driver != "sqlite" {
		t.Errorf("datasource defaults: %+v", cfg.Datasource)
	}
	if len(cfg.LLM.MultimodalModels) == 0 {
		t.Error("multimodal model list should have defaults")
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maestro.toml")
	content := `
[llm]
model = "deepseek-chat"
base_url = "https://api.deepseek.com/v1"
max_input_tokens = 50000
auto_summary = true

[workspace]
path = "ws"

[datasource]
driver = "postgres"
dsn = "postgres://localhost/maestro"

[observer]
enabled = true

[observer.pricing.deepseek-chat]
input = 0.14
output = 0.28
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.LLM.Model != "deepseek-chat" || cfg.LLM.MaxInputTokens != 50000 || !cfg.LLM.AutoSummary {
		t.Errorf("llm not loaded: %+v", cfg.LLM)
	}
	if cfg.LLM.MaxTokens != 4096 {
		t.Errorf("unset keys must keep defaults: %d", cfg.LLM.MaxTokens)
	}
	if cfg.Workspace.Path != "ws" || cfg.Datasource.Driver != "postgres" {
		t.Errorf("sections not loaded: %+v %+v", cfg.Workspace, cfg.Datasource)
	}
	if !cfg.Observer.Enabled || cfg.Observer.Pricing["deepseek-chat"].Input != 0.14 {
		t.Errorf("observer not loaded: %+v", cfg.Observer)
	}
}

func TestLoadEnvWinsOverTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "maestro.toml")
	os.WriteFile(path, []byte("[llm]\nmodel = \"from-toml\"\n"), 0o644)

	t.Setenv("MAESTRO_LLM_MODEL", "from-env")
	t.Setenv("MAESTRO_LLM_API_KEY", "sk-env")
	t.Setenv("MAESTRO_LLM_MAX_INPUT_TOKENS", "1234")
	t.Setenv("MAESTRO_AUTO_SUMMARY", "1")

	cfg := Load(path)
	if cfg.LLM.Model != "from-env" {
		t.Errorf("env must win: %q", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "sk-env" || cfg.LLM.MaxInputTokens != 1234 || !cfg.LLM.AutoSummary {
		t.Errorf("env overrides not applied: %+v", cfg.LLM)
	}
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("missing file should fall back to defaults: %+v", cfg.LLM)
	}
}
