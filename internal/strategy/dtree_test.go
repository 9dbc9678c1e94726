package strategy

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"github.com/rcliao/thyra/internal/model"
)

func solveDTree(t *testing.T, c *model.CaseRecord, opts Options) model.Verdict {
	t.Helper()
	d := &DTree{}
	return d.Solve(context.Background(), c, opts)
}

func TestDTreeHypothyroidism(t *testing.T) {
	c := testCase(
		lab("TSH", "8.2", "0.4", "4.0"),
		lab("Free T4", "0.6", "0.8", "1.8"),
	)
	v := solveDTree(t, c, Options{})
	if v.PredictedLabel != model.LabelPositive {
		t.Errorf("expected positive, got %d (%s)", v.PredictedLabel, v.Rationale)
	}
	if !strings.Contains(v.Rationale, "hypothyroidism") {
		t.Errorf("unexpected rationale: %s", v.Rationale)
	}
}

func TestDTreeHyperthyroidism(t *testing.T) {
	c := testCase(
		lab("TSH", "0.1", "0.4", "4.0"),
		lab("Free T4", "2.5", "0.8", "1.8"),
	)
	v := solveDTree(t, c, Options{})
	if v.PredictedLabel != model.LabelPositive || !strings.Contains(v.Rationale, "hyperthyroidism") {
		t.Errorf("expected hyperthyroidism positive, got %d (%s)", v.PredictedLabel, v.Rationale)
	}
}

func TestDTreeT3PredominantHyperthyroidism(t *testing.T) {
	// Suppressed TSH with an isolated T3 elevation is the hyper rule,
	// not subclinical.
	c := testCase(
		lab("TSH", "0.1", "0.4", "4.0"),
		lab("T3", "250", "80", "200"),
	)
	v := solveDTree(t, c, Options{})
	if v.PredictedLabel != model.LabelPositive || !strings.Contains(v.Rationale, "hyperthyroidism") {
		t.Errorf("expected hyperthyroidism positive, got %d (%s)", v.PredictedLabel, v.Rationale)
	}
}

func TestDTreeSubclinical(t *testing.T) {
	c := testCase(lab("TSH", "8.2", "0.4", "4.0"))
	v := solveDTree(t, c, Options{})
	if v.PredictedLabel != model.LabelPositive || !strings.Contains(v.Rationale, "subclinical") {
		t.Errorf("expected subclinical positive, got %d (%s)", v.PredictedLabel, v.Rationale)
	}
}

func TestDTreeAllNormal(t *testing.T) {
	c := testCase(
		lab("TSH", "2.0", "0.4", "4.0"),
		lab("Free T4", "1.1", "0.8", "1.8"),
		lab("T3", "120", "80", "200"),
	)
	v := solveDTree(t, c, Options{})
	if v.PredictedLabel != model.LabelNegative {
		t.Errorf("expected negative, got %d (%s)", v.PredictedLabel, v.Rationale)
	}
}

func TestDTreeInsufficientData(t *testing.T) {
	c := testCase(lab("Glucose", "90", "70", "110"))
	v := solveDTree(t, c, Options{})
	if v.PredictedLabel != model.LabelUnresolved || !strings.Contains(v.Rationale, "insufficient_data") {
		t.Errorf("expected unresolved for missing analytes, got %d (%s)", v.PredictedLabel, v.Rationale)
	}
}

func TestDTreeDiscordantPattern(t *testing.T) {
	// Normal TSH with elevated free T4 contradicts intact feedback.
	c := testCase(
		lab("TSH", "2.0", "0.4", "4.0"),
		lab("Free T4", "2.5", "0.8", "1.8"),
	)
	v := solveDTree(t, c, Options{})
	if v.PredictedLabel != model.LabelPositive || !strings.Contains(v.Rationale, "interference") {
		t.Errorf("expected interference positive, got %d (%s)", v.PredictedLabel, v.Rationale)
	}

	c.TextSummary = "Patient reports taking levothyroxine daily since 2019."
	v = solveDTree(t, c, Options{UseText: true})
	if !strings.Contains(v.Rationale, "levothyroxine") {
		t.Errorf("expected medication mention in rationale, got %s", v.Rationale)
	}
}

func TestDTreeNoRuleMatch(t *testing.T) {
	// Only an abnormal uptake with no TSH: no rule fires.
	c := testCase(lab("T3 Uptake", "45", "24", "39"))
	v := solveDTree(t, c, Options{})
	if v.PredictedLabel != model.LabelUnresolved || !strings.Contains(v.Rationale, "no_match") {
		t.Errorf("expected unresolved no_match, got %d (%s)", v.PredictedLabel, v.Rationale)
	}
}

func TestDTreeDeterministic(t *testing.T) {
	c := testCase(
		lab("TSH", "8.2", "0.4", "4.0"),
		lab("Free T4", "0.6", "0.8", "1.8"),
	)
	v1 := solveDTree(t, c, Options{})
	v2 := solveDTree(t, c, Options{})
	if !reflect.DeepEqual(v1, v2) {
		t.Errorf("verdicts differ across identical runs:\n%+v\n%+v", v1, v2)
	}
}
