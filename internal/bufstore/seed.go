package bufstore

import "context"

// seedTemplate is one of the clinical reasoning templates the store
// starts with, so a cold run retrieves before it has distilled anything.
type seedTemplate struct {
	signature string
	labelHint int
	steps     []string
}

// The placeholders ({summary}, {abnormalities}) are filled with the
// concrete case values at instantiation time.
var seedTemplates = []seedTemplate{
	{
		signature: Signature([]string{"tsh:HIGH", "ft4:LOW"}),
		labelHint: 1,
		steps: []string{
			"Review the distilled panel: {summary}.",
			"Elevated TSH together with a decrease in one of FT4/T4/FTI suggests insufficient thyroid hormone secretion.",
			"Check TPOAb: an elevation would point to an autoimmune background such as Hashimoto's thyroiditis.",
			"Weigh the abnormalities ({abnormalities}) against the hypothyroidism pattern and decide.",
			"Answer with exactly one line: Final: 1 (disease) or Final: 0 (no disease).",
		},
	},
	{
		signature: Signature([]string{"tsh:LOW", "ft4:HIGH"}),
		labelHint: 1,
		steps: []string{
			"Review the distilled panel: {summary}.",
			"Low TSH accompanied by elevation of one of FT4/T4/FTI/T3 suggests excessive thyroid hormone secretion.",
			"If T3 is elevated while T4 stays normal, consider T3-predominant hyperthyroidism.",
			"Weigh the abnormalities ({abnormalities}) against the hyperthyroidism pattern and decide.",
			"Answer with exactly one line: Final: 1 (disease) or Final: 0 (no disease).",
		},
	},
	{
		signature: Signature([]string{"tsh:HIGH"}),
		labelHint: 1,
		steps: []string{
			"Review the distilled panel: {summary}.",
			"TSH is abnormal while FT4/T4/FTI remain within the reference range, consistent with subclinical thyroid dysfunction.",
			"Weigh the abnormalities ({abnormalities}) and decide whether subclinical dysfunction counts as disease here: it does.",
			"Answer with exactly one line: Final: 1 (disease) or Final: 0 (no disease).",
		},
	},
	{
		signature: Signature([]string{"tsh:LOW"}),
		labelHint: 1,
		steps: []string{
			"Review the distilled panel: {summary}.",
			"TSH is abnormal while FT4/T4/FTI remain within the reference range, consistent with subclinical thyroid dysfunction.",
			"Weigh the abnormalities ({abnormalities}) and decide whether subclinical dysfunction counts as disease here: it does.",
			"Answer with exactly one line: Final: 1 (disease) or Final: 0 (no disease).",
		},
	},
	{
		signature: EmptySignature,
		labelHint: 0,
		steps: []string{
			"Review the distilled panel: {summary}.",
			"Core thyroid hormones are all within the normal range.",
			"Absent any abnormality, persistent symptoms would point at other systems, not the thyroid.",
			"Answer with exactly one line: Final: 1 (disease) or Final: 0 (no disease).",
		},
	},
}

// Seed inserts the built-in clinical templates, skipping signatures that
// already have an entry. Returns how many were inserted.
func Seed(ctx context.Context, s Store) (int, error) {
	inserted := 0
	for _, t := range seedTemplates {
		_, created, err := s.GetOrCreate(ctx, t.signature, t.steps, t.labelHint)
		if err != nil {
			return inserted, err
		}
		if created {
			inserted++
		}
	}
	return inserted, nil
}
