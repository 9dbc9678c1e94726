// Package model defines the core case and verdict data types.
package model

// LabResult is a single laboratory measurement for a patient admission.
// Results sharing a charttime form one test session.
type LabResult struct {
	TestName      string `json:"test_name"`
	Value         string `json:"value"`
	Unit          string `json:"unit,omitempty"`
	RefRangeLower string `json:"ref_range_lower,omitempty"`
	RefRangeUpper string `json:"ref_range_upper,omitempty"`
	Flag          string `json:"flag,omitempty"`
	ChartTime     string `json:"charttime"`
}

// CaseRecord is a normalized view of one patient admission. It is created
// by the data-preparation collaborators, immutable for the duration of a
// solve, and never persisted by the engine.
type CaseRecord struct {
	SubjectID   string      `json:"subject_id"`
	HadmID      string      `json:"hadm_id"`
	LabSessions []LabResult `json:"lab_sessions"`
	TextSummary string      `json:"text_summary,omitempty"`
	Label       *int        `json:"label,omitempty"`
}

// ID returns the stable case identifier carried on every verdict.
func (c *CaseRecord) ID() string {
	return c.SubjectID + "/" + c.HadmID
}

// Predicted label values. Unresolved covers every path that could not
// produce a binary answer: backend failure, parse failure, missing data,
// or a per-case timeout.
const (
	LabelNegative   = 0
	LabelPositive   = 1
	LabelUnresolved = -1
)

// Verdict is the structured output of one strategy for one case.
// Exactly one verdict is emitted per case per run.
type Verdict struct {
	CaseID         string   `json:"case_id"`
	SubjectID      string   `json:"subject_id"`
	HadmID         string   `json:"hadm_id"`
	Strategy       string   `json:"strategy"`
	UseText        bool     `json:"use_text"`
	PredictedLabel int      `json:"predicted_label"`
	Rationale      string   `json:"rationale"`
	Confidence     *float64 `json:"confidence,omitempty"`
}

// ValidMethods are the selectable reasoning strategies.
var ValidMethods = map[string]bool{
	"pure_llm": true,
	"cot":      true,
	"bot":      true,
	"bfs":      true,
	"dtree":    true,
}
