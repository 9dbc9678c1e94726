package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rcliao/thyra/internal/backend"
	"github.com/rcliao/thyra/internal/bufstore"
	"github.com/rcliao/thyra/internal/labs"
	"github.com/rcliao/thyra/internal/model"
)

// BufferStore is the slice of the buffer store the strategy needs.
type BufferStore interface {
	Get(ctx context.Context, signature string) (*bufstore.Entry, error)
	GetOrCreate(ctx context.Context, signature string, steps []string, labelHint int) (*bufstore.Entry, bool, error)
	Nearest(ctx context.Context, tokens []string, minSim float64) (*bufstore.Entry, float64, error)
	RecordUse(ctx context.Context, signature string, correct *bool) error
}

// minTemplateSim is the Jaccard threshold below which a stored
// template is considered unrelated to the case at hand.
const minTemplateSim = 0.5

// BoT reuses distilled reasoning templates keyed by abnormality
// signature, falling back to chain-of-thought when no template fits
// and distilling the successful trace into a new one.
type BoT struct {
	Gateway *backend.Gateway
	Store   BufferStore
}

func (b *BoT) Name() string { return "bot" }

func (b *BoT) Solve(ctx context.Context, c *model.CaseRecord, opts Options) model.Verdict {
	sum := labs.Distill(c)
	sig := bufstore.Signature(sum.AbnormalTokens)

	entry, err := b.retrieve(ctx, sig, sum.AbnormalTokens)
	if err != nil && !errors.Is(err, bufstore.ErrNotFound) {
		return verdict(c, b.Name(), opts, model.LabelUnresolved, "buffer store error: "+err.Error())
	}

	if entry != nil {
		label, rationale := b.applyTemplate(ctx, c, sum, entry, opts)
		b.recordUse(ctx, entry.Signature, c, label)
		return verdict(c, b.Name(), opts, label, rationale)
	}

	// Template miss: reason from scratch, then distill the trace so
	// the next case with this signature retrieves instead of reasons.
	cot := CoT{Gateway: b.Gateway}
	label, rationale, _ := cot.solve(ctx, c, opts)
	if label != model.LabelUnresolved {
		steps := distillTemplate(rationale)
		created, fresh, err := b.Store.GetOrCreate(ctx, sig, steps, label)
		if err != nil {
			slog.Warn("template distillation failed", "signature", sig, "error", err)
		} else {
			if fresh {
				slog.Debug("distilled new template", "signature", sig, "steps", len(steps))
			}
			b.recordUse(ctx, created.Signature, c, label)
		}
	}
	return verdict(c, b.Name(), opts, label, rationale)
}

// retrieve returns an exact-signature entry when present, otherwise
// the nearest sufficiently similar one, otherwise ErrNotFound.
func (b *BoT) retrieve(ctx context.Context, sig string, tokens []string) (*bufstore.Entry, error) {
	entry, err := b.Store.Get(ctx, sig)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, bufstore.ErrNotFound) {
		return nil, err
	}
	near, sim, err := b.Store.Nearest(ctx, tokens, minTemplateSim)
	if err != nil {
		return nil, err
	}
	slog.Debug("retrieved nearest template", "signature", near.Signature, "similarity", sim)
	return near, nil
}

func (b *BoT) applyTemplate(ctx context.Context, c *model.CaseRecord, sum *labs.Summary, entry *bufstore.Entry, opts Options) (int, string) {
	prompt := instantiate(entry.Steps, sum) + "\n\n" + labs.LabBlock(c) + textPart(c, opts)

	out, err := b.Gateway.Invoke(ctx, prompt, opts.invoke(requireFinal))
	if err != nil {
		return model.LabelUnresolved, "backend error: " + err.Error()
	}
	label := parseFinal(out)
	rationale := fmt.Sprintf("template %s (used %d times): %s", entry.Signature, entry.Usage, rationaleOf(out))
	return label, rationale
}

// recordUse bumps the template's usage counter, and its outcome
// counters too when the case carries a gold label.
func (b *BoT) recordUse(ctx context.Context, signature string, c *model.CaseRecord, label int) {
	var correct *bool
	if c.Label != nil && (label == model.LabelNegative || label == model.LabelPositive) {
		v := label == *c.Label
		correct = &v
	}
	if err := b.Store.RecordUse(ctx, signature, correct); err != nil {
		slog.Warn("usage update failed", "signature", signature, "error", err)
	}
}

// instantiate fills a template's placeholders with the case summary
// and renders the steps as a numbered reasoning scaffold.
func instantiate(steps []string, sum *labs.Summary) string {
	abnormal := strings.Join(sum.AbnormalTokens, ", ")
	if abnormal == "" {
		abnormal = "none"
	}
	var sb strings.Builder
	sb.WriteString("You are an experienced endocrinologist. Follow the reasoning steps below for this patient.\n")
	for i, step := range steps {
		step = strings.ReplaceAll(step, "{summary}", sum.SummaryText)
		step = strings.ReplaceAll(step, "{abnormalities}", abnormal)
		fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
	}
	return sb.String()
}

var numberRe = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)

// maxTemplateSteps caps distilled templates so one verbose trace
// cannot dominate the store.
const maxTemplateSteps = 6

// distillTemplate abstracts a concrete reasoning trace into reusable
// steps: concrete values become {value} placeholders and the trace is
// bracketed by the standard opening and closing steps.
func distillTemplate(rationale string) []string {
	steps := []string{"Review the lab summary: {summary}. Abnormal findings: {abnormalities}."}
	for _, line := range strings.Split(rationale, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimLeft(line, "-*0123456789. )")
		line = strings.TrimSpace(line)
		if len(line) < 10 {
			continue
		}
		steps = append(steps, numberRe.ReplaceAllString(line, "{value}"))
		if len(steps) == maxTemplateSteps-1 {
			break
		}
	}
	steps = append(steps, "Answer with exactly one line: Final: 1 (disease) or Final: 0 (no disease).")
	return steps
}
