package config

import (
	"os"
	"path/filepath"
	"testing"
)

func envMap(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), false, envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":8000" {
		t.Fatalf("unexpected address: %q", cfg.Server.Address)
	}
	if cfg.Agent.Runtime != RuntimeDeterministic {
		t.Fatalf("unexpected runtime: %q", cfg.Agent.Runtime)
	}
	if cfg.LLM.Model != "gpt-5-mini" {
		t.Fatalf("unexpected model: %q", cfg.LLM.Model)
	}
	if cfg.Maps.Enabled() {
		t.Fatalf("maps should be disabled without a server url")
	}
	if !cfg.Metrics.IsEnabled() {
		t.Fatalf("metrics should default to enabled")
	}
	if cfg.Events.Driver != "log" {
		t.Fatalf("unexpected events driver: %q", cfg.Events.Driver)
	}
}

func TestLoadRequiredMissingFile(t *testing.T) {
	if _, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), true, envMap(nil)); err == nil {
		t.Fatalf("expected error for a required missing file")
	}
}

func TestLoadYAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aibank.yaml")
	content := `
server:
  address: ":9000"
agent:
  runtime: LLM
llm:
  model: gpt-4o-mini
  api_key_env: TEST_KEY
maps:
  server_url: "http://maps.local/mcp"
  cache:
    driver: none
log:
  audit:
    enabled: true
    path: audit/events.log
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadWithEnv(path, true, envMap(map[string]string{
		"LLM_MODEL": "gpt-5-mini",
		"TEST_KEY":  " secret ",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":9000" {
		t.Fatalf("unexpected address: %q", cfg.Server.Address)
	}
	if cfg.Agent.Runtime != RuntimeLLM {
		t.Fatalf("runtime should be normalised, got %q", cfg.Agent.Runtime)
	}
	if cfg.LLM.Model != "gpt-5-mini" {
		t.Fatalf("env should override the model, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "secret" {
		t.Fatalf("api key should come from api_key_env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Maps.ServerURL != "http://maps.local/mcp" {
		t.Fatalf("unexpected map server: %q", cfg.Maps.ServerURL)
	}
	if cfg.Log.Audit.Path != filepath.Join(dir, "audit", "events.log") {
		t.Fatalf("audit path should be resolved against the config dir, got %q", cfg.Log.Audit.Path)
	}
}

func TestLoadJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aibank.json")
	if err := os.WriteFile(path, []byte(`{"server":{"address":":7000"},"events":{"driver":"none"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadWithEnv(path, true, envMap(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":7000" || cfg.Events.Driver != "none" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestWhitespaceMapServerURLDisablesMaps(t *testing.T) {
	cfg, err := LoadWithEnv("", false, envMap(map[string]string{"MAP_SERVER_URL": "   "}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Maps.Enabled() {
		t.Fatalf("whitespace url should disable maps")
	}
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	cases := map[string]map[string]string{
		"runtime": {"AGENT_RUNTIME": "adk"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadWithEnv("", false, envMap(env)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("events:\n  driver: kafka\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadWithEnv(path, true, envMap(nil)); err == nil {
		t.Fatalf("expected error when kafka brokers are missing")
	}
}

func TestAlertingWebhookFromEnv(t *testing.T) {
	cfg, err := LoadWithEnv("", false, envMap(map[string]string{"ALERT_WEBHOOK_URL": " https://hooks.example/alerts "}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Alerting.WebhookURL != "https://hooks.example/alerts" {
		t.Fatalf("unexpected webhook url: %q", cfg.Alerting.WebhookURL)
	}
	if cfg.Alerting.Timeout().Seconds() != 5 {
		t.Fatalf("unexpected alert timeout: %v", cfg.Alerting.Timeout())
	}
}
