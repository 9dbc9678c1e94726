package strategy

import (
	"context"
	"strings"

	"github.com/rcliao/thyra/internal/backend"
	"github.com/rcliao/thyra/internal/labs"
	"github.com/rcliao/thyra/internal/model"
)

// PureLLM is the zero-shot baseline: one deliberately weak prompt, no
// role priming and no reasoning instruction, so the answer reflects the
// model's raw impression. This is the statistical floor the other
// strategies are measured against.
type PureLLM struct {
	Gateway *backend.Gateway
}

func (p *PureLLM) Name() string { return "pure_llm" }

func (p *PureLLM) Solve(ctx context.Context, c *model.CaseRecord, opts Options) model.Verdict {
	prompt := p.buildPrompt(c, opts)

	out, err := p.Gateway.Invoke(ctx, prompt, opts.invoke(nil))
	if err != nil {
		return verdict(c, p.Name(), opts, model.LabelUnresolved, "backend error: "+err.Error())
	}

	label := parseLastLine(out)
	return verdict(c, p.Name(), opts, label, out)
}

func (p *PureLLM) buildPrompt(c *model.CaseRecord, opts Options) string {
	return "Read the following information.\n" +
		"Based only on the general impression from the text and numbers,\n" +
		"give a simple guess whether the patient could possibly have a thyroid-related issue.\n" +
		"This is NOT a diagnostic task, and you do NOT need to apply medical knowledge.\n" +
		"Just give the best rough guess you can.\n\n" +
		labs.LabBlock(c) + "\n" +
		textPart(c, opts) +
		"Your answer (0 or 1):"
}

// parseLastLine reads the verdict from the final non-blank line, which
// the weak prompt asks for. Anything else is unresolved.
func parseLastLine(out string) int {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		last := strings.TrimSpace(lines[i])
		if last == "" {
			continue
		}
		switch last {
		case "0":
			return model.LabelNegative
		case "1":
			return model.LabelPositive
		}
		return model.LabelUnresolved
	}
	return model.LabelUnresolved
}
