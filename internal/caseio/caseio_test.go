package caseio

import (
	"strings"
	"testing"

	"github.com/rcliao/thyra/internal/model"
)

const goodLine = `{"subject_id":"10","hadm_id":"20","lab_sessions":[{"test_name":"TSH","value":"8.2","charttime":"01/03/2024 09:00:00"}]}`

func TestReadSkipsBlankAndBadLines(t *testing.T) {
	in := "\n" + goodLine + "\nnot json at all\n" + goodLine + "\n"
	cases, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(cases) != 2 {
		t.Fatalf("expected 2 cases, got %d", len(cases))
	}
	if cases[0].ID() != "10/20" {
		t.Errorf("expected case id 10/20, got %s", cases[0].ID())
	}
}

func TestReadRejectsInvalidRecord(t *testing.T) {
	in := `{"subject_id":"10","hadm_id":"20","lab_sessions":[]}`
	if _, err := Read(strings.NewReader(in)); err == nil {
		t.Fatal("expected error for record with no lab sessions")
	}

	in = `{"subject_id":"10","hadm_id":"20","label":2,"lab_sessions":[{"test_name":"TSH","value":"1","charttime":"x"}]}`
	if _, err := Read(strings.NewReader(in)); err == nil {
		t.Fatal("expected error for out-of-range label")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(&model.CaseRecord{HadmID: "20"}); err == nil {
		t.Error("expected error for missing subject_id")
	}
	one := 1
	c := &model.CaseRecord{
		SubjectID: "10", HadmID: "20", Label: &one,
		LabSessions: []model.LabResult{{TestName: "TSH", Value: "1"}},
	}
	if err := Validate(c); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}
}

func TestRequireText(t *testing.T) {
	cases := []model.CaseRecord{
		{SubjectID: "1", HadmID: "a", TextSummary: "admitted with fatigue"},
		{SubjectID: "2", HadmID: "b"},
		{SubjectID: "3", HadmID: "c", TextSummary: "   "},
	}
	missing := RequireText(cases)
	if len(missing) != 2 || missing[0] != "2/b" || missing[1] != "3/c" {
		t.Errorf("expected [2/b 3/c], got %v", missing)
	}
}
