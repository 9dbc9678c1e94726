package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// OllamaClient serves a local Ollama instance via its generate API.
type OllamaClient struct {
	id      string
	baseURL string
	model   string
	client  *http.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaClient builds a client for a local Ollama backend identity.
// baseURL falls back to OLLAMA_HOST, then the default local port.
func NewOllamaClient(id, baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		id:      id,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Complete implements the Client interface.
func (o *OllamaClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	opts := map[string]any{}
	if params.Temperature != nil {
		opts["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		opts["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		opts["stop"] = params.Stop
	}
	body, _ := json.Marshal(ollamaRequest{Model: o.model, Prompt: prompt, Stream: false, Options: opts})

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Backend: o.id, Kind: KindUnavailable, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		kind := KindUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return "", &Error{Backend: o.id, Kind: kind, Err: fmt.Errorf("ollama request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		kind := KindUnavailable
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			kind = KindRateLimited
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			kind = KindTimeout
		}
		return "", &Error{Backend: o.id, Kind: kind, Err: fmt.Errorf("ollama error %d: %s", resp.StatusCode, string(b))}
	}

	var result ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", &Error{Backend: o.id, Kind: KindMalformed, Err: err}
	}
	return strings.TrimSpace(result.Response), nil
}
