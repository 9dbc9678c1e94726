package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/thyra/internal/backend"
	"github.com/rcliao/thyra/internal/labs"
	"github.com/rcliao/thyra/internal/model"
)

// CoT is the linear chain-of-thought strategy: one call instructed to
// reason step by step and close with a Final: 0/1 marker line. With
// Samples > 1 it draws several completions and majority-votes the
// parsed labels (self-consistency).
type CoT struct {
	Gateway *backend.Gateway
}

func (s *CoT) Name() string { return "cot" }

func (s *CoT) Solve(ctx context.Context, c *model.CaseRecord, opts Options) model.Verdict {
	label, rationale, conf := s.solve(ctx, c, opts)
	v := verdict(c, s.Name(), opts, label, rationale)
	if conf != nil {
		v.Confidence = conf
	}
	return v
}

// solve is shared with the buffer-of-thought fallback path, which needs
// the raw rationale for distillation.
func (s *CoT) solve(ctx context.Context, c *model.CaseRecord, opts Options) (int, string, *float64) {
	prompt := s.buildPrompt(c, opts)

	samples := opts.Samples
	if samples <= 1 {
		out, err := s.Gateway.Invoke(ctx, prompt, opts.invoke(requireFinal))
		if err != nil {
			return model.LabelUnresolved, "backend error: " + err.Error(), nil
		}
		return parseFinal(out), rationaleOf(out), nil
	}

	// Self-consistency: unparsable or failed samples simply do not vote.
	votes := map[int]int{}
	rationales := map[int]string{}
	var lastErr error
	for i := 0; i < samples; i++ {
		out, err := s.Gateway.Invoke(ctx, prompt, opts.invoke(requireFinal))
		if err != nil {
			lastErr = err
			continue
		}
		label := parseFinal(out)
		if label == model.LabelUnresolved {
			continue
		}
		votes[label]++
		if _, ok := rationales[label]; !ok {
			rationales[label] = rationaleOf(out)
		}
	}

	total := votes[model.LabelNegative] + votes[model.LabelPositive]
	if total == 0 {
		reason := "no sample produced a parsable verdict"
		if lastErr != nil {
			reason += ": " + lastErr.Error()
		}
		return model.LabelUnresolved, reason, nil
	}
	label := model.LabelNegative
	if votes[model.LabelPositive] > votes[model.LabelNegative] {
		label = model.LabelPositive
	}
	conf := float64(votes[label]) / float64(total)
	rationale := fmt.Sprintf("%s\n\n(self-consistency: %d/%d votes)", rationales[label], votes[label], total)
	return label, rationale, &conf
}

func (s *CoT) buildPrompt(c *model.CaseRecord, opts Options) string {
	return "You are an experienced endocrinologist.\n" +
		"Task: Decide if the patient likely has a thyroid disease (1) or not (0).\n\n" +
		"Reason step by step through the lab values, then output the last line in the exact format:\n" +
		"Final: 1  (if disease)  OR  Final: 0 (if not)\n\n" +
		"Patient lab data:\n" + labs.LabBlock(c) + "\n" +
		textPart(c, opts) +
		"\nNow reason, and end with the final line."
}

// rationaleOf strips the marker line so the rationale is the reasoned
// text that preceded it.
func rationaleOf(out string) string {
	loc := finalRe.FindStringIndex(out)
	if loc == nil {
		return strings.TrimSpace(out)
	}
	r := strings.TrimSpace(out[:loc[0]])
	if r == "" {
		return strings.TrimSpace(out)
	}
	return r
}
