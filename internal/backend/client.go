// Package backend abstracts the model-serving backends behind one call
// contract with retry, backoff, timeout, and admission policy.
package backend

import "context"

// Params are the per-call generation parameters. Pointer fields are
// optional; nil leaves the provider default in place.
type Params struct {
	Temperature *float32
	MaxTokens   *int
	Stop        []string
}

// Client is a single model-serving backend. Implementations classify
// their failures as *Error so the gateway can apply retry policy.
type Client interface {
	Complete(ctx context.Context, prompt string, params Params) (string, error)
}

// Float32 and Int build optional Params fields inline.
func Float32(v float32) *float32 { return &v }
func Int(v int) *int             { return &v }
