package backend

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backends.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefault(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if _, ok := cfg["local"]; !ok {
		t.Error("default registry missing the local backend")
	}
	if _, ok := cfg["ollama"]; !ok {
		t.Error("default registry missing the ollama backend")
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfig(t, `
vllm:
  provider: openai
  base_url: http://gpu-node:8000/v1
  model: Qwen2.5-7B-Instruct-AWQ
  max_in_flight: 8
  rps: 2.5
remote:
  provider: openai
  model: gpt-4o-mini
  api_key_env: OPENAI_API_KEY
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	v := cfg["vllm"]
	if v.BaseURL != "http://gpu-node:8000/v1" || v.MaxInFlight != 8 || v.RPS != 2.5 {
		t.Errorf("unexpected identity %+v", v)
	}
	if cfg["remote"].APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("unexpected identity %+v", cfg["remote"])
	}
}

func TestLoadConfigRejectsBadProvider(t *testing.T) {
	path := writeConfig(t, "bad:\n  provider: grpc\n  model: m\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for unknown provider")
	}

	path = writeConfig(t, "bad:\n  provider: openai\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestBuildRequiresAPIKeyEnv(t *testing.T) {
	cfg := Config{"remote": {Provider: "openai", Model: "m", APIKeyEnv: "THYRA_TEST_MISSING_KEY"}}
	os.Unsetenv("THYRA_TEST_MISSING_KEY")
	if _, err := cfg.build("remote"); err == nil {
		t.Error("expected error when the key env var is unset")
	}

	t.Setenv("THYRA_TEST_MISSING_KEY", "sk-test")
	if _, err := cfg.build("remote"); err != nil {
		t.Errorf("expected client with key present, got %v", err)
	}
}
