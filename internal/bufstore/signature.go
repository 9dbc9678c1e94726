package bufstore

import (
	"sort"
	"strings"
)

// EmptySignature marks a case with no lab abnormalities.
const EmptySignature = "none"

// Signature derives the canonical problem signature from a case's
// abnormality tokens ("analyte:FLAG"). Sorted and deduplicated, so two
// cases with the same abnormality set always share a signature no matter
// the session order or the exact values.
func Signature(tokens []string) string {
	if len(tokens) == 0 {
		return EmptySignature
	}
	uniq := map[string]bool{}
	var out []string
	for _, t := range tokens {
		t = strings.TrimSpace(strings.ToLower(t))
		if t == "" || uniq[t] {
			continue
		}
		uniq[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return EmptySignature
	}
	sort.Strings(out)
	return strings.Join(out, "|")
}

// Tokens splits a signature back into its abnormality tokens.
func Tokens(sig string) []string {
	if sig == "" || sig == EmptySignature {
		return nil
	}
	return strings.Split(sig, "|")
}

// Jaccard computes set similarity between two token slices. Two empty
// sets are identical (1), one empty set shares nothing with a non-empty
// one (0).
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := map[string]bool{}
	for _, t := range a {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := map[string]bool{}
	for _, t := range b {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
