// Package strategy implements the reasoning strategies behind a single
// solve contract: zero-shot, chain-of-thought, buffer-of-thought,
// breadth-first tree search, and a deterministic rule baseline.
package strategy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rcliao/thyra/internal/backend"
	"github.com/rcliao/thyra/internal/labs"
	"github.com/rcliao/thyra/internal/model"
)

// Options carry the run-level knobs shared by every strategy. Strategy-
// specific fields are ignored by the strategies that do not use them.
type Options struct {
	Backend     string
	UseText     bool
	Temperature float32
	MaxTokens   int
	CallTimeout time.Duration

	// Samples enables chain-of-thought self-consistency when > 1.
	Samples int

	// Tree-of-thought knobs.
	Breadth int    // k candidate continuations per expansion
	Beam    int    // b states retained per depth
	Depth   int    // d maximum reasoning depth
	Score   string // "value" (gateway self-evaluation) | "heuristic"
}

// Solver is the common execution contract. Every call returns exactly
// one verdict with predicted_label in {0, 1, -1}; failures fold into an
// unresolved verdict rather than escaping.
type Solver interface {
	Name() string
	Solve(ctx context.Context, c *model.CaseRecord, opts Options) model.Verdict
}

// New builds the named solver with its collaborators. dtree takes no
// backend at all; only bot takes the buffer store.
func New(method string, gw *backend.Gateway, store BufferStore) (Solver, error) {
	switch method {
	case "pure_llm":
		return &PureLLM{Gateway: gw}, nil
	case "cot":
		return &CoT{Gateway: gw}, nil
	case "dtree":
		return &DTree{}, nil
	case "bot":
		return &BoT{Gateway: gw, Store: store}, nil
	case "bfs":
		return &ToT{Gateway: gw}, nil
	}
	return nil, fmt.Errorf("unknown method %q", method)
}

// finalRe matches the terminal verdict marker, tolerating the
// full-width colon some models emit.
var (
	finalRe = regexp.MustCompile(`(?i)\bfinal\s*[:：]?\s*([01])\b`)
	bareRe  = regexp.MustCompile(`\b([01])\b`)
)

// parseFinal extracts the predicted label from model output: the Final
// marker first, then any bare 0/1, else unresolved.
func parseFinal(text string) int {
	if m := finalRe.FindStringSubmatch(text); m != nil {
		if m[1] == "1" {
			return model.LabelPositive
		}
		return model.LabelNegative
	}
	if m := bareRe.FindStringSubmatch(text); m != nil {
		if m[1] == "1" {
			return model.LabelPositive
		}
		return model.LabelNegative
	}
	return model.LabelUnresolved
}

// requireFinal is the gateway-level shape check for marker-terminated
// responses; a miss triggers the strict re-prompt.
func requireFinal(text string) error {
	if finalRe.MatchString(text) {
		return nil
	}
	return fmt.Errorf("no Final: 0/1 marker in response")
}

func verdict(c *model.CaseRecord, name string, opts Options, label int, rationale string) model.Verdict {
	return model.Verdict{
		CaseID:         c.ID(),
		SubjectID:      c.SubjectID,
		HadmID:         c.HadmID,
		Strategy:       name,
		UseText:        opts.UseText,
		PredictedLabel: label,
		Rationale:      rationale,
	}
}

// textPart renders the optional clinical-text section of a prompt.
// Empty unless the run has text enabled and the case carries text.
func textPart(c *model.CaseRecord, opts Options) string {
	if !opts.UseText || strings.TrimSpace(c.TextSummary) == "" {
		return ""
	}
	return "\n\nAdditional patient information (do not repeat, use only for reasoning):\n" +
		labs.Truncate(labs.Sanitize(c.TextSummary), 800) + "\n"
}

func (o Options) params() backend.Params {
	p := backend.Params{}
	if o.Temperature > 0 {
		p.Temperature = backend.Float32(o.Temperature)
	}
	if o.MaxTokens > 0 {
		p.MaxTokens = backend.Int(o.MaxTokens)
	}
	return p
}

func (o Options) invoke(validate func(string) error) backend.InvokeOptions {
	return backend.InvokeOptions{
		Backend:  o.Backend,
		Params:   o.params(),
		Timeout:  o.CallTimeout,
		Validate: validate,
	}
}
