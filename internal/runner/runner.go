// Package runner drives a batch of cases through one solver, emitting
// exactly one JSONL verdict per case and supporting resumption from a
// partially written output file.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/thyra/internal/model"
	"github.com/rcliao/thyra/internal/strategy"
)

const defaultConcurrency = 4

// Config shapes one run.
type Config struct {
	Solver      strategy.Solver
	Options     strategy.Options
	Concurrency int
	CaseTimeout time.Duration
	Done        map[string]bool // case ids already present in the output
}

// Summary is what a finished run reports.
type Summary struct {
	Total      int
	Emitted    int
	Skipped    int
	Positive   int
	Negative   int
	Unresolved int
	Labeled    int
	Correct    int
	Elapsed    time.Duration
}

// Accuracy is correct/labeled over the cases that carried a gold
// label, or 0 when none did.
func (s Summary) Accuracy() float64 {
	if s.Labeled == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Labeled)
}

// Run solves every case not already done and writes verdicts to out as
// JSON lines. Verdict order follows completion, not input order; the
// case_id field is the join key.
func Run(ctx context.Context, cases []model.CaseRecord, out io.Writer, cfg Config) (Summary, error) {
	start := time.Now()
	sum := Summary{Total: len(cases)}

	var mu sync.Mutex
	enc := json.NewEncoder(out)

	g, gctx := errgroup.WithContext(ctx)
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g.SetLimit(limit)

	for i := range cases {
		c := &cases[i]
		if cfg.Done[c.ID()] {
			mu.Lock()
			sum.Skipped++
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			v := solveOne(gctx, cfg, c)

			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(v); err != nil {
				return fmt.Errorf("write verdict for %s: %w", c.ID(), err)
			}
			sum.Emitted++
			switch v.PredictedLabel {
			case model.LabelPositive:
				sum.Positive++
			case model.LabelNegative:
				sum.Negative++
			default:
				sum.Unresolved++
			}
			if c.Label != nil {
				sum.Labeled++
				if v.PredictedLabel == *c.Label {
					sum.Correct++
				}
			}
			return nil
		})
	}

	err := g.Wait()
	sum.Elapsed = time.Since(start)
	slog.Info("run finished",
		"strategy", cfg.Solver.Name(),
		"total", sum.Total,
		"emitted", sum.Emitted,
		"skipped", sum.Skipped,
		"unresolved", sum.Unresolved,
		"accuracy", sum.Accuracy(),
		"elapsed", sum.Elapsed)
	return sum, err
}

func solveOne(ctx context.Context, cfg Config, c *model.CaseRecord) model.Verdict {
	if cfg.CaseTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.CaseTimeout)
		defer cancel()
	}
	v := cfg.Solver.Solve(ctx, c, cfg.Options)
	if v.PredictedLabel == model.LabelUnresolved && ctx.Err() != nil {
		v.Rationale = "case timed out: " + ctx.Err().Error()
	}
	return v
}

// LoadDone reads an existing output file and returns the case ids it
// already holds, so a rerun picks up where the last one stopped. A
// missing file means nothing is done yet.
func LoadDone(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, err
	}
	defer f.Close()

	done := map[string]bool{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var v model.Verdict
		if err := json.Unmarshal(line, &v); err != nil {
			slog.Warn("skipping unparsable verdict line in existing output", "error", err)
			continue
		}
		if v.CaseID != "" {
			done[v.CaseID] = true
		}
	}
	return done, sc.Err()
}
