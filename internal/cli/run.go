package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/thyra/internal/backend"
	"github.com/rcliao/thyra/internal/bufstore"
	"github.com/rcliao/thyra/internal/caseio"
	"github.com/rcliao/thyra/internal/model"
	"github.com/rcliao/thyra/internal/runner"
	"github.com/rcliao/thyra/internal/strategy"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify a batch of cases",
		Run:   runRun,
	}

	cmd.Flags().String("cases", "", "Input JSONL case file (required)")
	cmd.Flags().StringP("method", "m", "", "Strategy: pure_llm, cot, dtree, bot or bfs (required)")
	cmd.Flags().StringP("backend", "b", "local", "Backend id from the registry")
	cmd.Flags().Bool("use-text", false, "Include the clinical text summary in prompts")
	cmd.Flags().StringP("out", "o", "", "Output JSONL path; appends and resumes if it exists (default: stdout)")
	cmd.Flags().Int("concurrency", 4, "Cases solved in parallel")
	cmd.Flags().Duration("case-timeout", 10*time.Minute, "Wall-clock budget per case")
	cmd.Flags().Int("attempts", backend.DefaultAttempts, "Backend attempts per call for retryable failures")
	cmd.Flags().Duration("call-timeout", backend.DefaultCallTimeout, "Timeout per backend call")
	cmd.Flags().Float32("temperature", 0.7, "Sampling temperature")
	cmd.Flags().Int("max-tokens", 1024, "Completion token cap")
	cmd.Flags().Int("samples", 1, "cot: self-consistency samples")
	cmd.Flags().IntP("breadth", "k", 3, "bfs: candidate continuations per expansion")
	cmd.Flags().Int("beam", 2, "bfs: states retained per depth")
	cmd.Flags().Int("depth", 3, "bfs: maximum reasoning depth")
	cmd.Flags().String("score", strategy.ScoreHeuristic, "bfs: scoring policy, value or heuristic")
	cmd.Flags().Bool("no-seed", false, "bot: skip seeding the built-in clinical templates")

	cmd.MarkFlagRequired("cases")
	cmd.MarkFlagRequired("method")

	RootCmd.AddCommand(cmd)
}

func runRun(cmd *cobra.Command, args []string) {
	casesPath, _ := cmd.Flags().GetString("cases")
	method, _ := cmd.Flags().GetString("method")
	backendID, _ := cmd.Flags().GetString("backend")
	useText, _ := cmd.Flags().GetBool("use-text")
	outPath, _ := cmd.Flags().GetString("out")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	caseTimeout, _ := cmd.Flags().GetDuration("case-timeout")
	attempts, _ := cmd.Flags().GetInt("attempts")
	callTimeout, _ := cmd.Flags().GetDuration("call-timeout")
	temperature, _ := cmd.Flags().GetFloat32("temperature")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	samples, _ := cmd.Flags().GetInt("samples")
	breadth, _ := cmd.Flags().GetInt("breadth")
	beam, _ := cmd.Flags().GetInt("beam")
	depth, _ := cmd.Flags().GetInt("depth")
	score, _ := cmd.Flags().GetString("score")
	noSeed, _ := cmd.Flags().GetBool("no-seed")

	if !model.ValidMethods[method] {
		exitErr("method", fmt.Errorf("unknown method %q", method))
	}
	if score != strategy.ScoreValue && score != strategy.ScoreHeuristic {
		exitErr("score", fmt.Errorf("unknown score policy %q", score))
	}

	cases, err := caseio.ReadFile(casesPath)
	if err != nil {
		exitErr("read cases", err)
	}
	if useText {
		if missing := caseio.RequireText(cases); len(missing) > 0 {
			exitErr("use-text", fmt.Errorf("cases without text summary: %s", strings.Join(missing, ", ")))
		}
	}

	cfg, err := backend.LoadConfig(backendsPath)
	if err != nil {
		exitErr("load backends", err)
	}
	if method != "dtree" {
		if _, ok := cfg[backendID]; !ok {
			exitErr("backend", fmt.Errorf("backend %q not in the registry", backendID))
		}
	}
	gw := backend.NewGateway(cfg)
	gw.Attempts = attempts

	var bs strategy.BufferStore
	if method == "bot" {
		s, err := openStore()
		if err != nil {
			exitErr("open store", err)
		}
		defer s.Close()
		if !noSeed {
			if _, err := bufstore.Seed(cmd.Context(), s); err != nil {
				exitErr("seed templates", err)
			}
		}
		bs = s
	}

	solver, err := strategy.New(method, gw, bs)
	if err != nil {
		exitErr("build solver", err)
	}

	var out io.Writer = os.Stdout
	done := map[string]bool{}
	if outPath != "" {
		done, err = runner.LoadDone(outPath)
		if err != nil {
			exitErr("read existing output", err)
		}
		f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			exitErr("open output", err)
		}
		defer f.Close()
		out = f
	}

	sum, err := runner.Run(cmd.Context(), cases, out, runner.Config{
		Solver: solver,
		Options: strategy.Options{
			Backend:     backendID,
			UseText:     useText,
			Temperature: temperature,
			MaxTokens:   maxTokens,
			CallTimeout: callTimeout,
			Samples:     samples,
			Breadth:     breadth,
			Beam:        beam,
			Depth:       depth,
			Score:       score,
		},
		Concurrency: concurrency,
		CaseTimeout: caseTimeout,
		Done:        done,
	})
	if err != nil {
		exitErr("run", err)
	}

	if outPath != "" {
		b, _ := json.MarshalIndent(sum, "", "  ")
		fmt.Println(string(b))
	}
}
