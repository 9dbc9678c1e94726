package strategy

import (
	"sort"
	"strings"

	"github.com/rcliao/thyra/internal/labs"
)

// Shared clinical rule helpers. All judgments use the programmatic
// flags only, never raw values, so unit differences cannot skew them.

var (
	axisNonTSH = []string{"ft4", "t4", "fti"}
	axisWithT3 = []string{"ft4", "t4", "fti", "t3"}
)

func anyHigh(sum *labs.Summary, keys []string) bool {
	for _, k := range keys {
		if sum.FlagOf(k) == labs.FlagHigh {
			return true
		}
	}
	return false
}

func anyLow(sum *labs.Summary, keys []string) bool {
	for _, k := range keys {
		if sum.FlagOf(k) == labs.FlagLow {
			return true
		}
	}
	return false
}

func allNormalOrMissing(sum *labs.Summary, keys []string) bool {
	for _, k := range keys {
		f := sum.FlagOf(k)
		if f != "" && f != labs.FlagNormal {
			return false
		}
	}
	return true
}

// discordant detects indicator combinations that contradict the normal
// pituitary-thyroid feedback axis, pointing at medication effects or
// assay interference rather than straightforward dysfunction.
func discordant(sum *labs.Summary) bool {
	tsh := sum.FlagOf("tsh")
	t3 := sum.FlagOf("t3")

	if tsh == labs.FlagNormal && (anyHigh(sum, axisWithT3) || anyLow(sum, axisWithT3)) {
		return true
	}
	if tsh == labs.FlagLow && anyLow(sum, axisNonTSH) {
		return true
	}
	if tsh == labs.FlagHigh && anyHigh(sum, axisNonTSH) {
		return true
	}
	// Isolated T3 abnormality: medication or non-thyroidal illness.
	if (t3 == labs.FlagHigh || t3 == labs.FlagLow) && tsh == labs.FlagNormal && allNormalOrMissing(sum, axisNonTSH) {
		return true
	}
	return false
}

// medKeywords are drugs and interferents known to move thyroid labs:
// replacement therapy, antithyroid drugs, and axis/assay interferers.
var medKeywords = []string{
	"levothyroxine", "l-thyroxine", "l thyroxine", "eltroxin", "euthyrox", "lt4",
	"methimazole", "carbimazole", "propylthiouracil", "ptu", "mmi",
	"amiodarone", "lithium", "glucocorticoid", "steroid",
	"prednisone", "dexamethasone", "dopamine", "heparin", "biotin",
}

func detectMedKeywords(text string) (bool, []string) {
	if text == "" {
		return false, nil
	}
	low := strings.ToLower(text)
	seen := map[string]bool{}
	var hits []string
	for _, kw := range medKeywords {
		if strings.Contains(low, kw) && !seen[kw] {
			seen[kw] = true
			hits = append(hits, kw)
		}
	}
	sort.Strings(hits)
	return len(hits) > 0, hits
}
