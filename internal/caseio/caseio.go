// Package caseio reads case records produced by the data-preparation
// collaborators, one JSON object per line.
package caseio

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rcliao/thyra/internal/model"
)

// Read decodes case records from r. Blank lines are skipped; unparsable
// lines are logged and skipped rather than aborting the batch, matching
// how the checkpoint files are read. A record with no lab sessions is a
// hard error: every case must carry at least one.
func Read(r io.Reader) ([]model.CaseRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var cases []model.CaseRecord
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var c model.CaseRecord
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			slog.Warn("skipping unparsable case line", "line", lineNo, "error", err)
			continue
		}
		if err := Validate(&c); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		cases = append(cases, c)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read cases: %w", err)
	}
	return cases, nil
}

// ReadFile reads case records from a JSONL file.
func ReadFile(path string) ([]model.CaseRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cases: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Validate enforces the record invariants from the ingestion contract.
func Validate(c *model.CaseRecord) error {
	if c.SubjectID == "" {
		return fmt.Errorf("case missing subject_id")
	}
	if len(c.LabSessions) == 0 {
		return fmt.Errorf("case %s has no lab sessions", c.ID())
	}
	if c.Label != nil && *c.Label != model.LabelNegative && *c.Label != model.LabelPositive {
		return fmt.Errorf("case %s has invalid label %d", c.ID(), *c.Label)
	}
	return nil
}

// RequireText reports whether the batch can run in text-enabled mode:
// a case without a text summary forces text-disabled mode for that case,
// and the caller decides whether that is acceptable for the run.
func RequireText(cases []model.CaseRecord) (missing []string) {
	for i := range cases {
		if strings.TrimSpace(cases[i].TextSummary) == "" {
			missing = append(missing, cases[i].ID())
		}
	}
	return missing
}
