package strategy

import (
	"context"
	"errors"
	"testing"

	"github.com/rcliao/thyra/internal/backend"
	"github.com/rcliao/thyra/internal/model"
)

func TestPureLLMReadsLastLine(t *testing.T) {
	stub := &stubClient{fn: func(int, string) (string, error) {
		return "Hard to say, but the numbers look off.\n1", nil
	}}
	p := &PureLLM{Gateway: newStubGateway(stub)}

	v := p.Solve(context.Background(), testCase(lab("TSH", "8.2", "0.4", "4.0")), stubOpts)
	if v.PredictedLabel != model.LabelPositive {
		t.Errorf("expected positive, got %d", v.PredictedLabel)
	}
	if v.Strategy != "pure_llm" {
		t.Errorf("unexpected strategy name %s", v.Strategy)
	}
}

func TestPureLLMUnparsableAnswer(t *testing.T) {
	stub := &stubClient{fn: func(int, string) (string, error) {
		return "It could go either way.", nil
	}}
	p := &PureLLM{Gateway: newStubGateway(stub)}

	v := p.Solve(context.Background(), testCase(lab("TSH", "2.0", "0.4", "4.0")), stubOpts)
	if v.PredictedLabel != model.LabelUnresolved {
		t.Errorf("expected unresolved, got %d", v.PredictedLabel)
	}
}

func TestPureLLMBackendFailure(t *testing.T) {
	stub := &stubClient{fn: func(int, string) (string, error) {
		return "", &backend.Error{Backend: "stub", Kind: backend.KindUnavailable, Err: errors.New("down")}
	}}
	p := &PureLLM{Gateway: newStubGateway(stub)}

	v := p.Solve(context.Background(), testCase(lab("TSH", "2.0", "0.4", "4.0")), stubOpts)
	if v.PredictedLabel != model.LabelUnresolved {
		t.Errorf("expected unresolved on backend failure, got %d", v.PredictedLabel)
	}
}

func TestParseLastLine(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"0", model.LabelNegative},
		{"thinking...\n1\n", model.LabelPositive},
		{"1 maybe", model.LabelUnresolved},
		{"", model.LabelUnresolved},
	}
	for _, tc := range cases {
		if got := parseLastLine(tc.in); got != tc.want {
			t.Errorf("parseLastLine(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
