package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient serves any OpenAI-compatible chat-completion endpoint:
// the hosted APIs as well as a local vLLM server, which speaks the same
// protocol on its /v1 route.
type OpenAIClient struct {
	id     string
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client for one backend identity. An empty
// baseURL targets the hosted API; apiKey may be empty for local servers.
func NewOpenAIClient(id, baseURL, apiKey, model string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	return &OpenAIClient{id: id, client: openai.NewClientWithConfig(cfg), model: model}
}

// Complete implements the Client interface.
func (o *OpenAIClient) Complete(ctx context.Context, prompt string, params Params) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", o.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Backend: o.id, Kind: KindMalformed, Err: fmt.Errorf("no choices returned")}
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (o *OpenAIClient) classify(err error) error {
	kind := KindUnavailable
	var apiErr *openai.APIError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &apiErr):
		switch apiErr.HTTPStatusCode {
		case 429:
			kind = KindRateLimited
		case 408, 504:
			kind = KindTimeout
		}
	}
	return &Error{Backend: o.id, Kind: kind, Err: err}
}
