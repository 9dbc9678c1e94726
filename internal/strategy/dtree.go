package strategy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcliao/thyra/internal/labs"
	"github.com/rcliao/thyra/internal/model"
)

// DTree classifies from programmatic lab flags alone. It never calls a
// backend, so identical input always yields an identical verdict.
type DTree struct{}

func (d *DTree) Name() string { return "dtree" }

func (d *DTree) Solve(_ context.Context, c *model.CaseRecord, opts Options) model.Verdict {
	sum := labs.Distill(c)

	if !sum.HasAnyMonitored() {
		return verdict(c, d.Name(), opts,
			model.LabelUnresolved,
			"rule=insufficient_data: no monitored thyroid analytes found in the lab sessions")
	}

	tsh := sum.FlagOf("tsh")

	if discordant(sum) {
		reason := "discordant flag pattern across the pituitary-thyroid axis"
		if opts.UseText {
			if found, hits := detectMedKeywords(c.TextSummary); found {
				reason += "; interfering medication mentioned: " + strings.Join(hits, ", ")
			}
		}
		return verdict(c, d.Name(), opts, model.LabelPositive,
			"rule=medication_or_assay_interference: "+reason)
	}

	if tsh == labs.FlagLow && anyHigh(sum, axisWithT3) {
		return verdict(c, d.Name(), opts, model.LabelPositive,
			fmt.Sprintf("rule=hyperthyroidism: TSH %s with elevated peripheral hormone", tsh))
	}

	if tsh == labs.FlagHigh && anyLow(sum, axisNonTSH) {
		return verdict(c, d.Name(), opts, model.LabelPositive,
			fmt.Sprintf("rule=hypothyroidism: TSH %s with low peripheral hormone", tsh))
	}

	if (tsh == labs.FlagHigh || tsh == labs.FlagLow) && allNormalOrMissing(sum, axisNonTSH) {
		return verdict(c, d.Name(), opts, model.LabelPositive,
			fmt.Sprintf("rule=subclinical: isolated TSH %s with normal or missing peripheral hormones", tsh))
	}

	if sum.FlagOf("tpoab") == labs.FlagHigh {
		return verdict(c, d.Name(), opts, model.LabelPositive,
			"rule=autoimmune_marker: elevated thyroid peroxidase antibody")
	}

	if tsh == labs.FlagNormal && allNormalOrMissing(sum, labs.Monitored) {
		return verdict(c, d.Name(), opts, model.LabelNegative,
			"rule=normal: TSH and all measured analytes within reference range")
	}

	return verdict(c, d.Name(), opts, model.LabelUnresolved,
		"rule=no_match: flag pattern "+strings.Join(sum.AbnormalTokens, ",")+" matched no rule")
}
