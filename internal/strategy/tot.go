package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rcliao/thyra/internal/backend"
	"github.com/rcliao/thyra/internal/labs"
	"github.com/rcliao/thyra/internal/model"
)

// Default search shape when the caller leaves the knobs at zero.
const (
	defaultBreadth = 3
	defaultBeam    = 2
	defaultDepth   = 3
)

// Score policy names accepted by Options.Score.
const (
	ScoreValue     = "value"
	ScoreHeuristic = "heuristic"
)

// totState is one node in the search arena. Rationale holds the full
// reasoning accumulated from the root down to this node.
type totState struct {
	id        int
	parent    int
	depth     int
	rationale string
	score     float64
	terminal  bool
}

// ToT runs a breadth-first search over partial reasoning chains,
// expanding each retained state into several continuations and keeping
// the best-scored beam per level.
type ToT struct {
	Gateway *backend.Gateway
}

func (t *ToT) Name() string { return "bfs" }

func (t *ToT) Solve(ctx context.Context, c *model.CaseRecord, opts Options) model.Verdict {
	k, b, d := opts.Breadth, opts.Beam, opts.Depth
	if k <= 0 {
		k = defaultBreadth
	}
	if b <= 0 {
		b = defaultBeam
	}
	if d <= 0 {
		d = defaultDepth
	}

	sum := labs.Distill(c)
	arena := []totState{{id: 0, parent: -1}}
	frontier := []int{0}
	var terminals []int

	for depth := 1; depth <= d && len(frontier) > 0; depth++ {
		children := make([][]totState, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		for i, id := range frontier {
			i, id := i, id
			g.Go(func() error {
				kids, err := t.expand(gctx, c, sum, arena[id], k, depth, d, opts)
				if err != nil {
					slog.Warn("expansion failed", "state", id, "depth", depth, "error", err)
					return nil
				}
				children[i] = kids
				return nil
			})
		}
		g.Wait()

		g, gctx = errgroup.WithContext(ctx)
		for i := range frontier {
			if len(children[i]) == 0 {
				continue
			}
			i := i
			g.Go(func() error {
				t.scoreChildren(gctx, c, sum, children[i], opts)
				return nil
			})
		}
		g.Wait()

		var next []int
		for i := range frontier {
			for _, kid := range children[i] {
				kid.id = len(arena)
				arena = append(arena, kid)
				if kid.terminal {
					terminals = append(terminals, kid.id)
				} else {
					next = append(next, kid.id)
				}
			}
		}
		sort.SliceStable(next, func(x, y int) bool {
			return arena[next[x]].score > arena[next[y]].score
		})
		if len(next) > b {
			next = next[:b]
		}
		frontier = next
	}

	if len(terminals) == 0 {
		return verdict(c, t.Name(), opts, model.LabelUnresolved,
			fmt.Sprintf("search exhausted at depth %d with no conclusive chain", d))
	}

	best := terminals[0]
	for _, id := range terminals[1:] {
		if arena[id].score > arena[best].score {
			best = id
		}
	}
	label := parseFinal(arena[best].rationale)
	conf := arena[best].score / 10
	if conf > 1 {
		conf = 1
	}
	v := verdict(c, t.Name(), opts, label, arena[best].rationale)
	v.Confidence = &conf
	return v
}

// expand asks the backend for k numbered continuations of one state
// and splits the reply into child states. A continuation containing a
// final answer marker becomes a terminal node.
func (t *ToT) expand(ctx context.Context, c *model.CaseRecord, sum *labs.Summary, st totState, k, depth, maxDepth int, opts Options) ([]totState, error) {
	prompt := t.expandPrompt(c, sum, st, k, depth, maxDepth, opts)
	out, err := t.Gateway.Invoke(ctx, prompt, opts.invoke(nil))
	if err != nil {
		return nil, err
	}

	var kids []totState
	for _, cont := range splitNumbered(out, k) {
		kid := totState{
			parent:    st.id,
			depth:     depth,
			rationale: joinChain(st.rationale, cont),
		}
		if finalRe.MatchString(cont) || depth == maxDepth {
			kid.terminal = true
		}
		kids = append(kids, kid)
	}
	return kids, nil
}

func (t *ToT) expandPrompt(c *model.CaseRecord, sum *labs.Summary, st totState, k, depth, maxDepth int, opts Options) string {
	var sb strings.Builder
	sb.WriteString("You are an experienced endocrinologist deciding whether a patient has a thyroid disease (1) or not (0).\n\n")
	sb.WriteString(labs.LabBlock(c))
	sb.WriteString(textPart(c, opts))
	if st.rationale != "" {
		sb.WriteString("\nReasoning so far:\n")
		sb.WriteString(st.rationale)
		sb.WriteString("\n")
	}
	switch {
	case depth == 1:
		fmt.Fprintf(&sb, "\nPropose %d distinct observations summarizing the most decision-relevant lab findings.", k)
	case depth == maxDepth:
		fmt.Fprintf(&sb, "\nPropose %d distinct conclusions. Each must end with exactly one line: Final: 1 or Final: 0.", k)
	default:
		fmt.Fprintf(&sb, "\nPropose %d distinct next reasoning steps interpreting the hormone pattern. If the evidence is already conclusive, a step may end with the line Final: 1 or Final: 0.", k)
	}
	fmt.Fprintf(&sb, "\nNumber them 1. through %d., one per line group.", k)
	return sb.String()
}

// scoreChildren assigns a score to every child of one parent. The
// value policy spends a single backend call per parent scoring all
// candidates at once; the heuristic policy is local and free.
func (t *ToT) scoreChildren(ctx context.Context, c *model.CaseRecord, sum *labs.Summary, kids []totState, opts Options) {
	if opts.Score != ScoreValue {
		for i := range kids {
			kids[i].score = heuristicScore(kids[i], sum)
		}
		return
	}
	scores, err := t.valueScores(ctx, c, kids, opts)
	if err != nil {
		slog.Warn("value scoring failed, falling back to heuristic", "error", err)
		for i := range kids {
			kids[i].score = heuristicScore(kids[i], sum)
		}
		return
	}
	for i := range kids {
		kids[i].score = scores[i]
	}
}

var scoreLineRe = regexp.MustCompile(`(?m)^\s*(\d+)\s*[:.]\s*(\d+(?:\.\d+)?)`)

func (t *ToT) valueScores(ctx context.Context, c *model.CaseRecord, kids []totState, opts Options) ([]float64, error) {
	var sb strings.Builder
	sb.WriteString("Rate how promising each candidate reasoning chain is for correctly classifying this patient's thyroid status. ")
	sb.WriteString("Reward chains grounded in the measured hormone pattern; penalize contradictions and unsupported claims.\n\n")
	sb.WriteString(labs.LabBlock(c))
	sb.WriteString("\nCandidates:\n")
	for i, kid := range kids {
		fmt.Fprintf(&sb, "--- Candidate %d ---\n%s\n", i+1, kid.rationale)
	}
	fmt.Fprintf(&sb, "\nReply with one line per candidate in the form \"<number>: <score 1-10>\", nothing else.")

	out, err := t.Gateway.Invoke(ctx, sb.String(), opts.invoke(nil))
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(kids))
	for _, m := range scoreLineRe.FindAllStringSubmatch(out, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > len(kids) {
			continue
		}
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			scores[idx-1] = v
		}
	}
	return scores, nil
}

// heuristicScore rewards chains that engage with the actually abnormal
// analytes and, for terminal chains, agree with the flag evidence.
func heuristicScore(st totState, sum *labs.Summary) float64 {
	low := strings.ToLower(st.rationale)
	score := 1.0
	for _, tok := range sum.AbnormalTokens {
		name := tok[:strings.IndexByte(tok, ':')]
		if strings.Contains(low, name) {
			score += 2
		}
	}
	if st.terminal {
		label := parseFinal(st.rationale)
		switch {
		case label == model.LabelPositive && len(sum.AbnormalTokens) > 0:
			score += 3
		case label == model.LabelNegative && len(sum.AbnormalTokens) == 0:
			score += 3
		case label == model.LabelUnresolved:
			score -= 2
		}
	}
	return score
}

var numberedRe = regexp.MustCompile(`(?m)^\s*(\d+)[.)]\s*`)

// splitNumbered breaks a "1. ... 2. ... 3. ..." reply into at most k
// continuations. A reply with no numbering is treated as a single
// continuation.
func splitNumbered(out string, k int) []string {
	locs := numberedRe.FindAllStringIndex(out, -1)
	if len(locs) == 0 {
		if s := strings.TrimSpace(out); s != "" {
			return []string{s}
		}
		return nil
	}
	var parts []string
	for i, loc := range locs {
		end := len(out)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		part := strings.TrimSpace(out[loc[1]:end])
		if part != "" {
			parts = append(parts, part)
		}
		if len(parts) == k {
			break
		}
	}
	return parts
}

func joinChain(prefix, cont string) string {
	if prefix == "" {
		return cont
	}
	return prefix + "\n" + cont
}
