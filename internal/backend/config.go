package backend

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Identity configures one backend identity. Credentials are never stored
// in the file: api_key_env names the environment variable to read.
type Identity struct {
	Provider    string  `yaml:"provider"` // openai | ollama
	BaseURL     string  `yaml:"base_url,omitempty"`
	Model       string  `yaml:"model"`
	APIKeyEnv   string  `yaml:"api_key_env,omitempty"`
	MaxInFlight int64   `yaml:"max_in_flight,omitempty"` // default 4
	RPS         float64 `yaml:"rps,omitempty"`           // default unlimited
}

// Config maps backend_id to its identity configuration.
type Config map[string]Identity

// LoadConfig reads the YAML backend registry. A missing path yields the
// default registry: a local vLLM endpoint and a local Ollama endpoint.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backend config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse backend config: %w", err)
	}
	for id, ident := range cfg {
		switch ident.Provider {
		case "openai", "ollama":
		default:
			return nil, fmt.Errorf("backend %s: unknown provider %q", id, ident.Provider)
		}
		if ident.Model == "" {
			return nil, fmt.Errorf("backend %s: model is required", id)
		}
	}
	return cfg, nil
}

// DefaultConfig mirrors the local self-hosted setup the system was
// developed against.
func DefaultConfig() Config {
	return Config{
		"local": {
			Provider: "openai",
			BaseURL:  "http://localhost:8000/v1",
			Model:    "Qwen2.5-7B-Instruct-AWQ",
		},
		"ollama": {
			Provider: "ollama",
			Model:    "llama2:7b-chat",
		},
	}
}

func (c Config) build(id string) (Client, error) {
	ident, ok := c[id]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q", id)
	}
	switch ident.Provider {
	case "ollama":
		return NewOllamaClient(id, ident.BaseURL, ident.Model), nil
	default:
		apiKey := ""
		if ident.APIKeyEnv != "" {
			apiKey = os.Getenv(ident.APIKeyEnv)
			if apiKey == "" {
				return nil, fmt.Errorf("backend %s: %s not set", id, ident.APIKeyEnv)
			}
		}
		return NewOpenAIClient(id, ident.BaseURL, apiKey, ident.Model), nil
	}
}
