package strategy

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rcliao/thyra/internal/backend"
	"github.com/rcliao/thyra/internal/model"
)

// stubClient scripts completions per call number.
type stubClient struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	fn      func(call int, prompt string) (string, error)
}

func (s *stubClient) Complete(_ context.Context, prompt string, _ backend.Params) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	return s.fn(call, prompt)
}

func newStubGateway(stub *stubClient) *backend.Gateway {
	g := backend.NewGateway(backend.Config{})
	g.BaseDelay = time.Millisecond
	g.Register("stub", stub, 8)
	return g
}

var stubOpts = Options{Backend: "stub"}

func lab(name, value, lo, hi string) model.LabResult {
	return model.LabResult{
		TestName: name, Value: value,
		RefRangeLower: lo, RefRangeUpper: hi,
		ChartTime: "01/03/2024 09:00:00",
	}
}

func testCase(results ...model.LabResult) *model.CaseRecord {
	return &model.CaseRecord{SubjectID: "10", HadmID: "20", LabSessions: results}
}

func TestParseFinal(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"Some reasoning.\nFinal: 1", model.LabelPositive},
		{"final:0", model.LabelNegative},
		{"Final： 1", model.LabelPositive}, // full-width colon
		{"the answer is 1", model.LabelPositive},
		{"no verdict here", model.LabelUnresolved},
		{"", model.LabelUnresolved},
	}
	for _, tc := range cases {
		if got := parseFinal(tc.in); got != tc.want {
			t.Errorf("parseFinal(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRequireFinal(t *testing.T) {
	if err := requireFinal("thinking...\nFinal: 0"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := requireFinal("no marker at all"); err == nil {
		t.Error("expected error for missing marker")
	}
}

func TestNewUnknownMethod(t *testing.T) {
	if _, err := New("guess", nil, nil); err == nil {
		t.Error("expected error for unknown method")
	}
	for m := range model.ValidMethods {
		if _, err := New(m, nil, nil); err != nil {
			t.Errorf("New(%q): %v", m, err)
		}
	}
}

func TestTextPart(t *testing.T) {
	c := testCase(lab("TSH", "2.0", "0.4", "4.0"))
	if textPart(c, Options{UseText: true}) != "" {
		t.Error("expected empty text part when the case has no text")
	}
	c.TextSummary = "admitted with fatigue"
	if textPart(c, Options{}) != "" {
		t.Error("expected empty text part when use-text is off")
	}
	got := textPart(c, Options{UseText: true})
	if !strings.Contains(got, "admitted with fatigue") {
		t.Errorf("text part missing summary: %q", got)
	}
}
